package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miosa/osa-chat/chat"
)

// DefaultTimeout bounds every HTTP request made by a Client.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend's HTTP endpoints. Set Token before the client
// is shared between goroutines; it is read without locking.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

func (c *Client) SetToken(token string) {
	c.Token = token
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &health, nil
}

// OnlineUsers fetches the presence list. Any failure is a *chat.PollError.
// A JSON null body is an empty roster.
func (c *Client) OnlineUsers(ctx context.Context) ([]chat.User, error) {
	resp, err := c.get(ctx, "/online-users")
	if err != nil {
		return nil, &chat.PollError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &chat.PollError{Status: resp.StatusCode, Err: c.parseError(resp)}
	}
	var wire []OnlineUser
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &chat.PollError{Status: resp.StatusCode, Err: fmt.Errorf("decode online users: %w", err)}
	}
	users := make([]chat.User, 0, len(wire))
	for _, u := range wire {
		users = append(users, u.User())
	}
	return users, nil
}

// Logout asks the backend to end the session of username. Any 2xx response
// is success; everything else is a *chat.LogoutError.
func (c *Client) Logout(ctx context.Context, username string) error {
	resp, err := c.postJSON(ctx, "/logout", LogoutRequest{Username: username})
	if err != nil {
		return &chat.LogoutError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &chat.LogoutError{Status: resp.StatusCode, Err: c.parseError(resp)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	return c.HTTPClient.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		if apiErr.Details != "" {
			return fmt.Errorf("API %d: %s: %s", resp.StatusCode, apiErr.Error, apiErr.Details)
		}
		return fmt.Errorf("API %d: %s", resp.StatusCode, apiErr.Error)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return errors.New(http.StatusText(resp.StatusCode))
	}
	return fmt.Errorf("API %d: %s", resp.StatusCode, text)
}
