// Package captcha verifies bot-challenge responses against the hosted
// verification service (Turnstile-compatible siteverify protocol).
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a challenge response for a remote address.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// Client verifies against the siteverify endpoint with a shared secret.
type Client struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewClient creates a verifier. verifyURL is the siteverify endpoint.
func NewClient(secret, verifyURL string) *Client {
	return &Client{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify posts the challenge response to the verification service.
// A network or decode failure is an error, distinct from a clean "not a
// human" verdict.
func (c *Client) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {c.secret},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("captcha: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha: verify call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha: verify status %d", resp.StatusCode)
	}

	var out struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("captcha: decode: %w", err)
	}
	return out.Success, nil
}
