// Package kodi talks to the media center over its JSON-RPC HTTP API.
package kodi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds one RPC call.
const DefaultTimeout = 10 * time.Second

// RPCError is an error object returned by the host.
type RPCError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("kodi: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	// URL is the JSON-RPC endpoint, e.g. http://127.0.0.1:8080/jsonrpc.
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a JSON-RPC 2.0 client.
type Client struct {
	http     *http.Client
	url      string
	username string
	password string
	timeout  time.Duration
	nextID   atomic.Int64
}

// New returns a Client.
func New(cfg Config) *Client {
	c := &Client{
		http:     cfg.HTTPClient,
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes method with params and decodes the result into out (which
// may be nil).
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)})
	if err != nil {
		return fmt.Errorf("kodi: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("kodi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kodi: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kodi: %s: HTTP %d", method, resp.StatusCode)
	}

	var rpc response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rpc); err != nil {
		return fmt.Errorf("kodi: decode %s: %w", method, err)
	}
	if rpc.Error != nil {
		rpc.Error.Method = method
		return rpc.Error
	}
	if out != nil && len(rpc.Result) > 0 {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("kodi: decode %s result: %w", method, err)
		}
	}
	return nil
}

// Ping checks the host is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.Call(ctx, "JSONRPC.Ping", nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("kodi: unexpected ping reply %q", pong)
	}
	return nil
}

// EnableAddon enables an installed add-on. The host only knows about an
// add-on once it has scanned the add-ons directory, so callers retry.
func (c *Client) EnableAddon(ctx context.Context, id string) error {
	return c.Call(ctx, "Addons.SetAddonEnabled", map[string]any{
		"addonid": id,
		"enabled": true,
	}, nil)
}

// Notify shows a toast notification for d.
func (c *Client) Notify(ctx context.Context, title, message string, d time.Duration) error {
	return c.Call(ctx, "GUI.ShowNotification", map[string]any{
		"title":       title,
		"message":     message,
		"image":       "info",
		"displaytime": int(d / time.Millisecond),
	}, nil)
}

// Restart quits the host; the platform supervisor starts it again.
func (c *Client) Restart(ctx context.Context) error {
	return c.Call(ctx, "Application.Quit", nil, nil)
}
