package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"hirelane/internal/activity"
	"hirelane/internal/analysis"
	"hirelane/internal/auth"
	"hirelane/internal/database"
)

var (
	createUsername string
	createAdmin    bool

	quotaUsername  string
	quotaAllotment int
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account with a random password",
	RunE:  runCreateUser,
}

var grantQuotaCmd = &cobra.Command{
	Use:   "grant-quota",
	Short: "Set a user's total AI analysis allotment",
	RunE:  runGrantQuota,
}

func init() {
	createUserCmd.Flags().StringVar(&createUsername, "username", "", "用户名（必填）")
	createUserCmd.Flags().BoolVar(&createAdmin, "admin", false, "创建管理员账号")
	_ = createUserCmd.MarkFlagRequired("username")

	grantQuotaCmd.Flags().StringVar(&quotaUsername, "username", "", "用户名（必填）")
	grantQuotaCmd.Flags().IntVar(&quotaAllotment, "allotment", 0, "新的总额度")
	_ = grantQuotaCmd.MarkFlagRequired("username")
	_ = grantQuotaCmd.MarkFlagRequired("allotment")

	rootCmd.AddCommand(createUserCmd, grantQuotaCmd)
}

func runCreateUser(cmd *cobra.Command, _ []string) error {
	username := strings.TrimSpace(createUsername)
	if username == "" {
		return errors.New("--username must not be empty")
	}
	_, db, err := openDatabase()
	if err != nil {
		return err
	}

	var existing database.User
	switch err := db.Where("username = ?", username).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", username)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := database.User{Username: username, PasswordHash: hashed, IsAdmin: createAdmin}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "已创建账号（admin=%t）：\n", user.IsAdmin)
	fmt.Fprintf(out, "用户名: %s\n", user.Username)
	fmt.Fprintf(out, "初始密码: %s\n", password)
	fmt.Fprintln(out, "提示：该密码仅显示一次。")
	return nil
}

func runGrantQuota(cmd *cobra.Command, _ []string) error {
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}

	var user database.User
	if err := db.Where("username = ?", strings.TrimSpace(quotaUsername)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %q not found", quotaUsername)
		}
		return fmt.Errorf("query user: %w", err)
	}

	svc := analysis.NewService(db, nil, nil, activity.NewRecorder(db), nil, nil, setupLogger(), analysis.Options{
		DefaultAllotment: cfg.Quota.DefaultAllotment,
	})
	view, err := svc.SetAllotment(cmd.Context(), 0, user.ID, quotaAllotment)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: allotment=%d used=%d remaining=%d\n", user.Username, view.Allotment, view.Used, view.Remaining)
	return nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
