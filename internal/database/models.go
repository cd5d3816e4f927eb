package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 职位状态。
const (
	JobStatusOpen   = "OPEN"
	JobStatusPaused = "PAUSED"
	JobStatusClosed = "CLOSED"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string `gorm:"size:255"`
	IsAdmin      bool   `gorm:"default:false"`
	Jobs         []Job  `gorm:"constraint:OnDelete:CASCADE"`
}

// Job 表示招聘者发布的职位。
type Job struct {
	gorm.Model
	Title       string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;default:'OPEN';index"`
	UserID      uint   `gorm:"index"`
	User        User   `gorm:"constraint:OnDelete:CASCADE"`
}

// Tag 是候选人上的自由标签。
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Candidate 表示一份投递记录；UserID 冗余自所属职位的 Owner。
// 删除为物理删除，因此不内嵌 gorm.Model。
type Candidate struct {
	ID                uint       `gorm:"primaryKey"`
	JobID             uint       `gorm:"index"`
	Job               Job        `gorm:"constraint:OnDelete:CASCADE"`
	UserID            uint       `gorm:"index"`
	Name              string     `gorm:"size:255"`
	Email             string     `gorm:"size:255"`
	ResumeKey         string     `gorm:"size:512"`
	ResumeContentType string     `gorm:"size:128"`
	Status            string     `gorm:"size:32;default:'NEW';index"`
	AIScore           *int       `gorm:"column:ai_score"`
	AISummary         string     `gorm:"column:ai_summary;type:text"`
	AnalyzedAt        *time.Time `gorm:"column:analyzed_at"`
	Tags              datatypes.JSONSlice[Tag]
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ActivityLog 是只追加的审计记录。
type ActivityLog struct {
	ID           uint      `gorm:"primaryKey"`
	ActorID      uint      `gorm:"index"`
	Action       string    `gorm:"size:100"`
	ResourceType string    `gorm:"size:64"`
	ResourceID   uint      `gorm:"index"`
	CreatedAt    time.Time `gorm:"index"`
	Metadata     datatypes.JSONMap
}

// UserQuota 记录每个用户的 AI 分析额度。
type UserQuota struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"uniqueIndex"`
	Allotment int
	Used      int
	UpdatedAt time.Time
}

// NotificationPreference 记录用户的通知偏好。
type NotificationPreference struct {
	UserID         uint `gorm:"primaryKey;autoIncrement:false"`
	BrowserEnabled bool
	SoundEnabled   bool
	UpdatedAt      time.Time
}

// AllModels 返回需要 AutoMigrate 的全部模型。
func AllModels() []any {
	return []any{
		&User{},
		&Job{},
		&Candidate{},
		&ActivityLog{},
		&UserQuota{},
		&NotificationPreference{},
	}
}
