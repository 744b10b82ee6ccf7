// internal/agent/client.go
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"
)

// Client is the thin HTTP client the in-app agent uses to talk to the
// session service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SessionStatus fetches the current status of one session token.
func (c *Client) SessionStatus(ctx context.Context, token string) (*session.Status, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sessions/%s", c.baseURL, url.PathEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, xerrors.ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d from session service", resp.StatusCode)
	}

	var envelope struct {
		Data session.Status `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &envelope.Data, nil
}

// EndSession reports a session termination with the given reason.
func (c *Client) EndSession(ctx context.Context, token string, reason session.EndReason) error {
	endpoint := fmt.Sprintf("%s/api/v1/sessions/%s/close", c.baseURL, url.PathEscape(token))

	body, err := json.Marshal(session.EndRequest{Reason: reason})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d from session service", resp.StatusCode)
	}

	return nil
}
