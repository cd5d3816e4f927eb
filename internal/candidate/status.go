package candidate

// 候选人评审状态，仅允许以下取值。
const (
	StatusNew         = "NEW"
	StatusReviewing   = "REVIEWING"
	StatusShortlisted = "SHORTLISTED"
	StatusInterview   = "INTERVIEW"
	StatusHired       = "HIRED"
	StatusRejected    = "REJECTED"
)

var statuses = []string{
	StatusNew,
	StatusReviewing,
	StatusShortlisted,
	StatusInterview,
	StatusHired,
	StatusRejected,
}

// Statuses 返回全部合法状态（有序）。
func Statuses() []string {
	out := make([]string, len(statuses))
	copy(out, statuses)
	return out
}

// ValidStatus 判断状态是否属于枚举。
func ValidStatus(status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
