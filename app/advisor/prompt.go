package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const (
	maxPromptHTML       = 40000
	maxPromptContent    = 8000
	maxPromptCandidates = 4
	maxPromptSummaries  = 3
	maxSummaryChars     = 1200
	maxNotesChars       = 240
	maxResponseBytes    = 5 * 1024 * 1024

	systemPrompt = "You are a strict JSON API. Return only JSON that matches the required output schema, with no markdown wrapper."
)

func clipRuleInput(input RuleInput) RuleInput {
	out := RuleInput{
		URL:   input.URL,
		Title: input.Title,
		HTML:  pipeline.Clip(input.HTML, maxPromptHTML),
	}
	for i, c := range input.Candidates {
		if i >= maxPromptCandidates {
			break
		}
		c.ContentText = pipeline.Clip(c.ContentText, maxPromptContent)
		c.ContentMarkdown = ""
		c.ContentHTML = ""
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

func clipSemanticInput(input SemanticInput) SemanticInput {
	c := input.Candidate
	c.ContentText = pipeline.Clip(c.ContentText, maxPromptContent)
	c.ContentMarkdown = ""
	c.ContentHTML = ""

	out := SemanticInput{Candidate: c}
	for i, s := range input.RecentSummaries {
		if i >= maxPromptSummaries {
			break
		}
		out.RecentSummaries = append(out.RecentSummaries, pipeline.Clip(s, maxSummaryChars))
	}
	return out
}

type promptCandidate struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt string `json:"publishedAt,omitempty"`
	ContentText string `json:"contentText"`
}

type promptPayload struct {
	Task         string            `json:"task"`
	Constraints  map[string]any    `json:"constraints"`
	Input        any               `json:"input"`
	OutputSchema map[string]string `json:"outputSchema"`
}

func toPromptCandidate(c pipeline.Candidate) promptCandidate {
	return promptCandidate{
		Key:         c.Key,
		Title:       c.Title,
		Link:        c.Link,
		PublishedAt: c.PublishedHint,
		ContentText: c.ContentText,
	}
}

func buildRulePrompt(input RuleInput) (string, error) {
	input = clipRuleInput(input)

	candidates := make([]promptCandidate, 0, len(input.Candidates))
	for _, c := range input.Candidates {
		candidates = append(candidates, toPromptCandidate(c))
	}

	payload := promptPayload{
		Task: "infer_web_extraction_rule",
		Constraints: map[string]any{
			"preferPartialExtraction": true,
			"allowedStrategy":         []string{"readability", "selector", "full_page"},
			"outputJsonOnly":          true,
		},
		Input: map[string]any{
			"page": map[string]string{
				"url":   input.URL,
				"title": input.Title,
				"html":  input.HTML,
			},
			"candidates": candidates,
		},
		OutputSchema: map[string]string{
			"strategy":          "readability|selector|full_page",
			"containerSelector": "string|optional",
			"itemSelector":      "string|optional",
			"titleSelector":     "string|optional",
			"linkSelector":      "string|optional",
			"timeSelector":      "string|optional",
			"notes":             "string|optional",
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return string(data), nil
}

func buildSemanticPrompt(input SemanticInput) (string, error) {
	input = clipSemanticInput(input)

	payload := promptPayload{
		Task: "semantic_novelty_decision",
		Constraints: map[string]any{
			"decisions":      []string{"new", "minor_update", "noise"},
			"outputJsonOnly": true,
		},
		Input: map[string]any{
			"candidate":       toPromptCandidate(input.Candidate),
			"recentSummaries": input.RecentSummaries,
		},
		OutputSchema: map[string]string{
			"decision": "new|minor_update|noise",
			"summary":  "string",
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return string(data), nil
}

// findJSONBlock returns the outermost {...} span of a model reply,
// which also strips fenced code blocks.
func findJSONBlock(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	first := strings.Index(reply, "{")
	last := strings.LastIndex(reply, "}")
	if first < 0 || last <= first {
		return "", fmt.Errorf("no JSON object in response: %q", pipeline.Clip(reply, 200))
	}
	return reply[first : last+1], nil
}

type ruleReply struct {
	Strategy          string `json:"strategy"`
	ContainerSelector string `json:"containerSelector"`
	ItemSelector      string `json:"itemSelector"`
	TitleSelector     string `json:"titleSelector"`
	LinkSelector      string `json:"linkSelector"`
	TimeSelector      string `json:"timeSelector"`
	Notes             string `json:"notes"`
}

func parseRule(reply string) (*pipeline.ExtractionRule, error) {
	block, err := findJSONBlock(reply)
	if err != nil {
		return nil, err
	}

	var raw ruleReply
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("parse rule: %w", err)
	}

	strategy := pipeline.Strategy(strings.ToLower(strings.TrimSpace(raw.Strategy)))
	if !strategy.Valid() {
		strategy = pipeline.StrategyReadability
	}

	return &pipeline.ExtractionRule{
		Strategy:          strategy,
		ContainerSelector: strings.TrimSpace(raw.ContainerSelector),
		ItemSelector:      strings.TrimSpace(raw.ItemSelector),
		TitleSelector:     strings.TrimSpace(raw.TitleSelector),
		LinkSelector:      strings.TrimSpace(raw.LinkSelector),
		TimeSelector:      strings.TrimSpace(raw.TimeSelector),
		Notes:             pipeline.Clip(strings.TrimSpace(raw.Notes), maxNotesChars),
	}, nil
}

type verdictReply struct {
	Decision string `json:"decision"`
	Summary  string `json:"summary"`
}

func parseVerdict(reply string) (*pipeline.SemanticVerdict, error) {
	block, err := findJSONBlock(reply)
	if err != nil {
		return nil, err
	}

	var raw verdictReply
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	decision := pipeline.Decision(strings.ToLower(strings.TrimSpace(raw.Decision)))
	if !decision.Valid() {
		return nil, fmt.Errorf("unknown decision: %q", raw.Decision)
	}

	summary := pipeline.Clip(pipeline.NormalizeSpace(raw.Summary), maxSummaryChars)
	if summary == "" {
		return nil, fmt.Errorf("empty summary")
	}

	return &pipeline.SemanticVerdict{Decision: decision, Summary: summary}, nil
}

// postJSON sends body as JSON and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, pipeline.Clip(string(data), 500))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
