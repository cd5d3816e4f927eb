package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hirelane/internal/database"
)

var jobsStatus string

var listJobsCmd = &cobra.Command{
	Use:   "list-jobs",
	Short: "List jobs across all accounts",
	RunE:  runListJobs,
}

func init() {
	listJobsCmd.Flags().StringVar(&jobsStatus, "status", "", "按状态过滤（OPEN、PAUSED、CLOSED）")
	rootCmd.AddCommand(listJobsCmd)
}

type jobRow struct {
	ID         uint
	Title      string
	Status     string
	Username   string
	Candidates int64
}

func runListJobs(cmd *cobra.Command, _ []string) error {
	_, db, err := openDatabase()
	if err != nil {
		return err
	}

	query := db.Model(&database.Job{}).
		Select("jobs.id, jobs.title, jobs.status, users.username, COUNT(candidates.id) AS candidates").
		Joins("JOIN users ON users.id = jobs.user_id").
		Joins("LEFT JOIN candidates ON candidates.job_id = jobs.id").
		Group("jobs.id, jobs.title, jobs.status, users.username").
		Order("jobs.id ASC")
	if status := strings.ToUpper(strings.TrimSpace(jobsStatus)); status != "" {
		query = query.Where("jobs.status = ?", status)
	}

	var rows []jobRow
	if err := query.Scan(&rows).Error; err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s %-32s %-8s %-20s %s\n", "ID", "Title", "Status", "Owner", "Candidates")
	fmt.Fprintln(out, strings.Repeat("─", 80))
	for _, r := range rows {
		fmt.Fprintf(out, "%-6d %-32s %-8s %-20s %d\n", r.ID, truncate(r.Title, 32), r.Status, r.Username, r.Candidates)
	}
	fmt.Fprintf(out, "\nTotal: %d jobs\n", len(rows))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
