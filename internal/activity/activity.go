// Package activity 写入与查询只追加的审计日志。
package activity

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hirelane/internal/database"
)

// 资源类型。
const (
	ResourceCandidate = "candidate"
	ResourceJob       = "job"
	ResourceUser      = "user"
)

// Entry 是一条待写入的审计记录。
type Entry struct {
	ActorID      uint
	Action       string
	ResourceType string
	ResourceID   uint
	Metadata     map[string]any
}

// Recorder 负责批量写入审计记录。
type Recorder struct {
	db *gorm.DB
}

// NewRecorder 构造 Recorder。
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record 批量插入审计记录。
func (r *Recorder) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]database.ActivityLog, 0, len(entries))
	now := time.Now().UTC()
	for _, e := range entries {
		rows = append(rows, database.ActivityLog{
			ActorID:      e.ActorID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Metadata:     datatypes.JSONMap(e.Metadata),
			CreatedAt:    now,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("insert activity logs: %w", err)
	}
	return nil
}

// ForEach 为每个资源 id 生成一条相同 action 的记录。
func ForEach(actorID uint, action, resourceType string, ids []uint, metadata map[string]any) []Entry {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry{
			ActorID:      actorID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   id,
			Metadata:     metadata,
		})
	}
	return entries
}

// List 按时间倒序返回某个操作者的审计记录。
func (r *Recorder) List(ctx context.Context, actorID uint, limit, offset int) ([]database.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var logs []database.ActivityLog
	if err := r.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return logs, nil
}
