package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexProvider 通过 Vertex AI（应用默认凭据）调用 Gemini。
type VertexProvider struct {
	client *genai.Client
	model  string
}

// NewVertexProvider 创建 Vertex AI 客户端。
func NewVertexProvider(ctx context.Context, projectID, location, model string) (*VertexProvider, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("vertex project id is required")
	}
	if location == "" {
		location = "us-central1"
	}
	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("create vertex ai client: %w", err)
	}
	return &VertexProvider{client: client, model: model}, nil
}

// Score 实现 Provider。
func (p *VertexProvider) Score(ctx context.Context, in Input) (Result, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(2048)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: in.MIMEType, Data: in.Resume},
		genai.Text(buildPrompt(in)),
	)
	if err != nil {
		return Result{}, classify(fmt.Errorf("vertex generate content: %w", err))
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
func (p *VertexProvider) Close() error {
	return p.client.Close()
}
