package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"portal/internal/platform/config"
)

// Client talks to the backend enrichment service with the caller's bearer
// token. The portal proxies job detail reads and consumes the service's
// log stream; it owns none of the job data.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// Stream connections are long-lived so they get their own client with
	// no overall timeout; cancellation comes from the subscription context.
	streamClient *http.Client
	maxRetries   int
	retryDelay   time.Duration
}

func NewClient(cfg config.EnrichmentConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.StreamMaxRetries
	if retries == 0 {
		retries = 3
	}
	delay := cfg.StreamRetryDelay
	if delay == 0 {
		delay = 2 * time.Second
	}
	return &Client{
		baseURL:      cfg.APIBaseURL,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		maxRetries:   retries,
		retryDelay:   delay,
	}
}

// Job is the authoritative job state from the enrichment service. The log
// stream is display-only; callers re-fetch this after a complete event.
type Job struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
	Progress      int    `json:"progress"`
	RowCount      int    `json:"row_count"`
	CreatedAt     string `json:"created_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("enrichment API error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) GetJob(ctx context.Context, token, jobID string) (*Job, error) {
	endpoint := fmt.Sprintf("%s/v1/enrichments/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}
