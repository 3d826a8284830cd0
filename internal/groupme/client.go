// Package groupme holds the slice of the GroupMe REST API the push listener
// needs: resolving the token's own user id.
package groupme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client makes REST calls to the GroupMe API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client targeting baseURL (e.g. "https://api.groupme.com/v3").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// User is the subset of /users/me the listener reads.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// envelope wraps every API reply.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Meta     struct {
		Code   int      `json:"code"`
		Errors []string `json:"errors"`
	} `json:"meta"`
}

// Me fetches /users/me.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/users/me", &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("GET /users/me: response has no id")
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	q := url.Values{"token": {c.token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return fmt.Errorf("GET %s: empty response (%v)", path, env.Meta.Errors)
	}
	return json.Unmarshal(env.Response, out)
}
