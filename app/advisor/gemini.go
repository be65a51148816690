package advisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-1.5-flash"
)

type geminiClient struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

func newGeminiAdapter(client *http.Client, apiKey, model, baseURL string) *jsonAdapter {
	if model == "" {
		model = geminiModel
	}
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &jsonAdapter{
		name: KindGemini,
		llm:  &geminiClient{client: client, apiKey: apiKey, model: model, baseURL: baseURL},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) complete(ctx context.Context, prompt string) (string, error) {
	var body geminiRequest
	body.GenerationConfig.ResponseMimeType = "application/json"
	body.SystemInstruction = geminiContent{Role: "system", Parts: []geminiPart{{Text: systemPrompt}}}
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var resp geminiResponse
	if err := postJSON(ctx, c.client, endpoint, headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("empty response")
}
