package worker

// AnalysisNotifyMessage 是后台分析结束后推送给前端的消息（经 Redis Pub/Sub 转发）。
// 字段名与前端解析保持一致。
type AnalysisNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	CandidateID   uint   `json:"candidate_id"`
	CorrelationID string `json:"correlation_id"`
	Score         *int   `json:"score,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
	Temporary     bool   `json:"isTemporary"`
}
