package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider 通过 API Key 调用 Gemini。
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider 创建 Gemini 客户端。
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Score 实现 Provider。
func (p *GeminiProvider) Score(ctx context.Context, in Input) (Result, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: in.MIMEType, Data: in.Resume},
		genai.Text(buildPrompt(in)),
	)
	if err != nil {
		return Result{}, classify(fmt.Errorf("gemini generate content: %w", err))
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	result, err := parseResult(sb.String())
	if err != nil {
		return Result{}, &Error{Err: err}
	}
	return result, nil
}

// Close 释放底层连接。
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
