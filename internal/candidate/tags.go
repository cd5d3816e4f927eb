package candidate

import (
	"regexp"
	"strings"

	"hirelane/internal/database"
)

// 标签操作。
const (
	TagActionAdd     = "add"
	TagActionRemove  = "remove"
	TagActionReplace = "replace"
)

const maxTagNameLength = 50

var tagColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// NormalizeTags 校验并清洗请求中的标签，同名（忽略大小写）只保留第一个。
// remove 操作只需要名称。
func NormalizeTags(action string, tags []database.Tag) ([]database.Tag, error) {
	switch action {
	case TagActionAdd, TagActionRemove, TagActionReplace:
	default:
		return nil, invalid("action must be one of add, remove, replace")
	}
	if len(tags) == 0 && action != TagActionReplace {
		return nil, invalid("tags must not be empty")
	}

	out := make([]database.Tag, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for i, tag := range tags {
		name := strings.TrimSpace(tag.Name)
		if name == "" {
			return nil, invalid("tags[%d].name is required", i)
		}
		if len([]rune(name)) > maxTagNameLength {
			return nil, invalid("tags[%d].name exceeds %d characters", i, maxTagNameLength)
		}
		color := strings.TrimSpace(tag.Color)
		if action != TagActionRemove && !tagColorPattern.MatchString(color) {
			return nil, invalid("tags[%d].color must be a hex color", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, database.Tag{Name: name, Color: color})
	}
	return out, nil
}

// ApplyTags 计算变更后的标签集合；结果中不存在忽略大小写同名的两个标签。
func ApplyTags(existing []database.Tag, action string, tags []database.Tag) []database.Tag {
	switch action {
	case TagActionReplace:
		return dedupeTags(tags)
	case TagActionRemove:
		drop := make(map[string]struct{}, len(tags))
		for _, t := range tags {
			drop[strings.ToLower(strings.TrimSpace(t.Name))] = struct{}{}
		}
		out := make([]database.Tag, 0, len(existing))
		for _, t := range existing {
			if _, ok := drop[strings.ToLower(strings.TrimSpace(t.Name))]; ok {
				continue
			}
			out = append(out, t)
		}
		return dedupeTags(out)
	default:
		merged := make([]database.Tag, 0, len(existing)+len(tags))
		merged = append(merged, existing...)
		merged = append(merged, tags...)
		return dedupeTags(merged)
	}
}

func dedupeTags(tags []database.Tag) []database.Tag {
	out := make([]database.Tag, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sameTags(a, b []database.Tag) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasTag(tags []database.Tag, name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, t := range tags {
		if strings.ToLower(t.Name) == key {
			return true
		}
	}
	return false
}
