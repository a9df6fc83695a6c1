package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ThreatStats is the reputation summary relayed to the frontend HUD.
type ThreatStats struct {
	Target          string `json:"target"`
	ConfidenceScore int    `json:"confidence_score"`
	TotalReports    int    `json:"total_reports"`
	CountryCode     string `json:"country_code"`
	ISP             string `json:"isp"`
	LastReportedAt  string `json:"last_reported_at"`
}

// ThreatLookup resolves a network identifier to reputation stats.
type ThreatLookup interface {
	Lookup(ctx context.Context, target string) (*ThreatStats, error)
}

// ThreatClient queries an AbuseIPDB-compatible check endpoint.
type ThreatClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewThreatClient creates a client. An empty apiKey yields ErrUnconfigured
// on every lookup.
func NewThreatClient(apiKey, baseURL string) *ThreatClient {
	return &ThreatClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup fetches reputation data for target.
func (c *ThreatClient) Lookup(ctx context.Context, target string) (*ThreatStats, error) {
	if c.apiKey == "" {
		return nil, ErrUnconfigured
	}

	q := url.Values{
		"ipAddress":    {target},
		"maxAgeInDays": {"90"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("threat lookup: new request: %w", err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("threat lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidKey
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrQuota
	default:
		return nil, fmt.Errorf("threat lookup: upstream status %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
			TotalReports         int    `json:"totalReports"`
			CountryCode          string `json:"countryCode"`
			ISP                  string `json:"isp"`
			LastReportedAt       string `json:"lastReportedAt"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("threat lookup: decode: %w", err)
	}

	return &ThreatStats{
		Target:          target,
		ConfidenceScore: out.Data.AbuseConfidenceScore,
		TotalReports:    out.Data.TotalReports,
		CountryCode:     out.Data.CountryCode,
		ISP:             out.Data.ISP,
		LastReportedAt:  out.Data.LastReportedAt,
	}, nil
}
