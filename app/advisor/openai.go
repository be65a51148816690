package advisor

import (
	"context"
	"fmt"
	"net/http"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4.1-mini"
)

type openAIClient struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

func newOpenAIAdapter(client *http.Client, apiKey, model, baseURL string) *jsonAdapter {
	if model == "" {
		model = openAIModel
	}
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &jsonAdapter{
		name: KindOpenAI,
		llm:  &openAIClient{client: client, apiKey: apiKey, model: model, baseURL: baseURL},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []openAIMessage   `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) complete(ctx context.Context, prompt string) (string, error) {
	body := openAIRequest{
		Model:          c.model,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp openAIResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
