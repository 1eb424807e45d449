package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultBaseURL = "https://api.resend.com/emails"

// ResendClient sends email through the Resend HTTP API. Transient failures
// are retried with backoff; the overall request carries a 10s timeout.
type ResendClient struct {
	APIKey  string
	From    string
	BaseURL string
	client  *retryablehttp.Client
}

// NewResendClient returns a client sending from the given address.
func NewResendClient(apiKey, from string) *ResendClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.Logger = nil
	c.HTTPClient.Timeout = 10 * time.Second
	return &ResendClient{APIKey: apiKey, From: from, BaseURL: defaultBaseURL, client: c}
}

// Send delivers one email. The code itself is never logged.
func (c *ResendClient) Send(ctx context.Context, to, subject, html string) error {
	if c.APIKey == "" {
		return fmt.Errorf("mailer: API key not configured")
	}
	payload := map[string]interface{}{
		"from":    c.From,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mailer: send failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
