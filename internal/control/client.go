// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Client talks to a running server over its control socket.
type Client struct {
	http *http.Client
}

// NewClient returns a client dialing socketPath.
func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

// Health fetches /health. A 503 still decodes into the response.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp, http.StatusOK, http.StatusServiceUnavailable)
	return resp, err
}

// Status fetches /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp, http.StatusOK)
	return resp, err
}

// Rcon sends a console command and reports whether a handler consumed it.
func (c *Client) Rcon(ctx context.Context, command string, args ...string) (bool, error) {
	var resp RconResponse
	err := c.do(ctx, http.MethodPost, "/rcon", RconRequest{Command: command, Args: args}, &resp, http.StatusOK)
	return resp.Handled, err
}

// Shutdown asks the server to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp ShutdownResponse
	return c.do(ctx, http.MethodPost, "/shutdown", nil, &resp, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return oops.Code("CONTROL_REQUEST_FAILED").Wrapf(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://nfive"+path, reader)
	if err != nil {
		return oops.Code("CONTROL_REQUEST_FAILED").Wrapf(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code("CONTROL_UNREACHABLE").With("path", path).Wrapf(err, "call control socket")
	}
	defer func() { _ = resp.Body.Close() }()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return oops.Code("CONTROL_REQUEST_FAILED").
			With("path", path).
			With("status", resp.StatusCode).
			Errorf("%s %s: %s", method, path, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code("CONTROL_REQUEST_FAILED").With("path", path).Wrapf(err, "decode response")
	}
	return nil
}
