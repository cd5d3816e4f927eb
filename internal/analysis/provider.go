// Package analysis 调用生成式模型为简历打分，并管理每个用户的分析额度。
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"hirelane/internal/config"
)

// Input 是一次评分请求。
type Input struct {
	JobTitle       string
	JobDescription string
	Resume         []byte
	MIMEType       string
}

// Result 是模型返回的评分。
type Result struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Provider 是生成式模型的最小抽象。
type Provider interface {
	Score(ctx context.Context, in Input) (Result, error)
	Close() error
}

// NewProvider 按配置创建模型客户端；provider 为 none 时返回 nil。
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	case "vertex":
		return NewVertexProvider(ctx, cfg.ProjectID, cfg.Location, cfg.Model)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

const promptTemplate = `You are screening applicants for the position below.

Job title: %s

Job description:
%s

Read the attached resume and rate how well the applicant fits this position.
Respond with a single JSON object and nothing else:
{"score": <integer from 0 to 100>, "summary": "<three to five sentences on strengths, gaps and overall fit>"}`

func buildPrompt(in Input) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(in.JobTitle), strings.TrimSpace(in.JobDescription))
}

var errMalformedResponse = errors.New("malformed model response")

// parseResult 解析模型输出，容忍 Markdown 代码块包裹，分数截断到 0..100。
func parseResult(text string) (Result, error) {
	body := strings.TrimSpace(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("%w: no json object", errMalformedResponse)
	}

	var raw struct {
		Score   *float64 `json:"score"`
		Summary string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if raw.Score == nil {
		return Result{}, fmt.Errorf("%w: score missing", errMalformedResponse)
	}

	score := int(math.Round(*raw.Score))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Result{Score: score, Summary: strings.TrimSpace(raw.Summary)}, nil
}

// baseMIMEType 去掉 Content-Type 中的参数部分。
func baseMIMEType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}
