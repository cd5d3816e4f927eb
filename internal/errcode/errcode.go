package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如简历缺失、额度耗尽）
// - 5xxx：系统错误；5030 表示上游临时过载，可重试
const (
	OK             = 0
	ResumeMissing  = 4004
	QuotaExhausted = 4029
	SystemError    = 5000
	UpstreamBusy   = 5030
)
