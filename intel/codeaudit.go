package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const auditPrompt = "You are a security reviewer. Point out vulnerabilities in the " +
	"following code snippet in at most five short bullet points. If the snippet " +
	"looks safe, say so in one line."

// CodeReviewer produces a short security review of a code snippet.
type CodeReviewer interface {
	Review(ctx context.Context, snippet string) (string, error)
}

// CodeAuditClient calls a chat-completions endpoint to review code.
type CodeAuditClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewCodeAuditClient creates a client. An empty apiKey yields ErrUnconfigured
// on every review.
func NewCodeAuditClient(apiKey, baseURL string) *CodeAuditClient {
	return &CodeAuditClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   "gpt-4o-mini",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Review sends the snippet to the completion service and returns its text.
func (c *CodeAuditClient) Review(ctx context.Context, snippet string) (string, error) {
	if c.apiKey == "" {
		return "", ErrUnconfigured
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": auditPrompt},
			{"role": "user", "content": snippet},
		},
		"max_tokens": 400,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("code audit: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("code audit: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("code audit: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrInvalidKey
	case http.StatusTooManyRequests:
		return "", ErrQuota
	default:
		return "", fmt.Errorf("code audit: upstream status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("code audit: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("code audit: empty completion")
	}
	return out.Choices[0].Message.Content, nil
}
