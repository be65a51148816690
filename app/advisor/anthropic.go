package advisor

import (
	"context"
	"fmt"
	"net/http"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicModel   = "claude-3-5-haiku-latest"
	anthropicVersion = "2023-06-01"
)

type anthropicClient struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

func newAnthropicAdapter(client *http.Client, apiKey, model, baseURL string) *jsonAdapter {
	if model == "" {
		model = anthropicModel
	}
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &jsonAdapter{
		name: KindAnthropic,
		llm:  &anthropicClient{client: client, apiKey: apiKey, model: model, baseURL: baseURL},
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *anthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	body := anthropicRequest{
		Model:     c.model,
		MaxTokens: 800,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/messages", headers, body, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", resp.Error.Message)
	}

	for _, part := range resp.Content {
		if part.Type == "text" && part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("empty response")
}
