package candidate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hirelane/internal/database"
)

// StatsFilter 限定统计范围；JobID 为 0 时统计 Owner 名下全部候选人。
type StatsFilter struct {
	OwnerID uint
	JobID   uint
}

// Stats 是候选人的聚合计数。
type Stats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	Analyzed     int64            `json:"analyzed"`
	AverageScore *float64         `json:"average_score,omitempty"`
}

// Stats 返回按状态分组的计数以及 AI 评分概况。
func (s *Service) Stats(ctx context.Context, filter StatsFilter) (Stats, error) {
	scope := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&database.Candidate{}).Where("user_id = ?", filter.OwnerID)
		if filter.JobID != 0 {
			q = q.Where("job_id = ?", filter.JobID)
		}
		return q
	}

	var groups []struct {
		Status string
		Count  int64
	}
	if err := scope().Select("status, COUNT(*) AS count").Group("status").Scan(&groups).Error; err != nil {
		return Stats{}, fmt.Errorf("count candidates by status: %w", err)
	}

	out := Stats{ByStatus: make(map[string]int64, len(statuses))}
	for _, st := range statuses {
		out.ByStatus[st] = 0
	}
	for _, g := range groups {
		out.ByStatus[g.Status] = g.Count
		out.Total += g.Count
	}

	var avg sql.NullFloat64
	row := scope().Where("ai_score IS NOT NULL").Select("COUNT(*), AVG(ai_score)").Row()
	if err := row.Scan(&out.Analyzed, &avg); err != nil {
		return Stats{}, fmt.Errorf("aggregate ai scores: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		out.AverageScore = &v
	}
	return out, nil
}

// TagUsage 是标签及其使用次数。
type TagUsage struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// ListTags 汇总 Owner 名下候选人使用过的标签（忽略大小写合并），按使用次数降序。
func (s *Service) ListTags(ctx context.Context, ownerID uint) ([]TagUsage, error) {
	var rows []struct {
		Tags datatypes.JSONSlice[database.Tag]
	}
	if err := s.db.WithContext(ctx).
		Model(&database.Candidate{}).
		Select("COALESCE(tags, '[]') AS tags").
		Where("user_id = ?", ownerID).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load candidate tags: %w", err)
	}

	index := make(map[string]int)
	usage := make([]TagUsage, 0)
	for _, row := range rows {
		for _, t := range row.Tags {
			key := strings.ToLower(strings.TrimSpace(t.Name))
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				index[key] = len(usage)
				usage = append(usage, TagUsage{Name: t.Name, Color: t.Color})
				i = len(usage) - 1
			}
			usage[i].Count++
		}
	}
	sort.SliceStable(usage, func(a, b int) bool {
		if usage[a].Count != usage[b].Count {
			return usage[a].Count > usage[b].Count
		}
		return strings.ToLower(usage[a].Name) < strings.ToLower(usage[b].Name)
	})
	return usage, nil
}
