package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"portal/internal/platform/config"
	"portal/internal/platform/metrics"
)

// Client is a typed wrapper over the Kong-compatible admin API. Every call
// is bounded by the configured request timeout and classifies failures into
// APIError values; callers branch on the classification, not on raw
// transport errors.
type Client struct {
	baseURL    string
	tag        string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.AdminURL,
		tag:        cfg.ProvenanceTag,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetConsumer looks up a consumer by username or id. A 404 maps to
// (nil, nil), not an error.
func (c *Client) GetConsumer(ctx context.Context, usernameOrID string) (*Consumer, error) {
	var consumer Consumer
	err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(usernameOrID), nil, &consumer)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &consumer, nil
}

func (c *Client) CreateConsumer(ctx context.Context, req *CreateConsumerRequest) (*Consumer, error) {
	var consumer Consumer
	if err := c.do(ctx, http.MethodPost, "/consumers", req, &consumer); err != nil {
		return nil, err
	}
	return &consumer, nil
}

// GetOrCreateConsumer resolves the consumer for a local user, creating it on
// first use with username and custom_id both set to the user id. Lookup and
// create are not atomic; two concurrent first requests can both attempt the
// create, and the loser surfaces the gateway's conflict unchanged.
func (c *Client) GetOrCreateConsumer(ctx context.Context, userID string) (*Consumer, error) {
	consumer, err := c.GetConsumer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if consumer != nil {
		return consumer, nil
	}

	return c.CreateConsumer(ctx, &CreateConsumerRequest{
		Username: userID,
		CustomID: userID,
		Tags:     []string{c.tag},
	})
}

// CreateKeyAuth issues a credential under a consumer. The response is the
// only place the plaintext secret ever appears.
func (c *Client) CreateKeyAuth(ctx context.Context, consumerID string) (*KeyAuth, error) {
	var cred KeyAuth
	path := fmt.Sprintf("/consumers/%s/key-auth", url.PathEscape(consumerID))
	body := map[string]interface{}{"tags": []string{c.tag}}
	if err := c.do(ctx, http.MethodPost, path, body, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListKeyAuth lists a consumer's credentials. An unknown consumer yields an
// empty list: "no consumer yet" and "no keys yet" are the same thing to
// callers.
func (c *Client) ListKeyAuth(ctx context.Context, consumerID string) ([]KeyAuth, error) {
	var list keyAuthList
	path := fmt.Sprintf("/consumers/%s/key-auth", url.PathEscape(consumerID))
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		if IsNotFound(err) {
			return []KeyAuth{}, nil
		}
		return nil, err
	}
	return list.Data, nil
}

// DeleteKeyAuth revokes a credential. Not-found surfaces as a classified 404
// so callers can treat the second revoke as idempotent success.
func (c *Client) DeleteKeyAuth(ctx context.Context, consumerID, keyID string) error {
	path := fmt.Sprintf("/consumers/%s/key-auth/%s", url.PathEscape(consumerID), url.PathEscape(keyID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// HealthCheck probes the admin root endpoint. Any failure yields false; it
// never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return connectionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classify(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "invalid gateway response: " + err.Error()}
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func classify(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Message
		apiErr.Fields = body.Fields
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
