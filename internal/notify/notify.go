// Package notify 管理用户的通知偏好。
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hirelane/internal/database"
)

// Preferences 是一个用户的通知偏好。
type Preferences struct {
	BrowserEnabled bool `json:"browser_enabled"`
	SoundEnabled   bool `json:"sound_enabled"`
}

// Patch 是部分更新；nil 字段保持不变。
type Patch struct {
	BrowserEnabled *bool `json:"browser_enabled"`
	SoundEnabled   *bool `json:"sound_enabled"`
}

// Defaults 是用户尚未保存偏好时的取值。
var Defaults = Preferences{BrowserEnabled: true, SoundEnabled: false}

// ErrNoPreferences 表示存储中没有该用户的记录。
var ErrNoPreferences = errors.New("no stored preferences")

// Store 持久化通知偏好。
type Store interface {
	Load(ctx context.Context, userID uint) (Preferences, error)
	Save(ctx context.Context, userID uint, prefs Preferences) error
}

// Service 读取与更新通知偏好。
type Service struct {
	store Store
}

// NewService 构造 Service。
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Preferences 返回已保存的偏好，未保存时返回默认值。
func (s *Service) Preferences(ctx context.Context, userID uint) (Preferences, error) {
	prefs, err := s.store.Load(ctx, userID)
	if errors.Is(err, ErrNoPreferences) {
		return Defaults, nil
	}
	if err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// Update 合并 patch 并保存，返回更新后的偏好。
func (s *Service) Update(ctx context.Context, userID uint, patch Patch) (Preferences, error) {
	prefs, err := s.Preferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if patch.BrowserEnabled != nil {
		prefs.BrowserEnabled = *patch.BrowserEnabled
	}
	if patch.SoundEnabled != nil {
		prefs.SoundEnabled = *patch.SoundEnabled
	}
	if err := s.store.Save(ctx, userID, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// GormStore 基于 notification_preferences 表的 Store。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 构造 GormStore。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Load 实现 Store。
func (s *GormStore) Load(ctx context.Context, userID uint) (Preferences, error) {
	var row database.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Preferences{}, ErrNoPreferences
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load notification preferences: %w", err)
	}
	return Preferences{BrowserEnabled: row.BrowserEnabled, SoundEnabled: row.SoundEnabled}, nil
}

// Save 实现 Store（按 user_id upsert）。
func (s *GormStore) Save(ctx context.Context, userID uint, prefs Preferences) error {
	row := database.NotificationPreference{
		UserID:         userID,
		BrowserEnabled: prefs.BrowserEnabled,
		SoundEnabled:   prefs.SoundEnabled,
		UpdatedAt:      time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"browser_enabled", "sound_enabled", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save notification preferences: %w", err)
	}
	return nil
}
