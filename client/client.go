// Package client talks to a running vault over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	zerotrust "github.com/mayanks4367/zero-trust"
	"github.com/mayanks4367/zero-trust/server"
	"github.com/rs/zerolog"
)

// Options tunes the client.
type Options struct {
	Logger zerolog.Logger

	// Timeout bounds a single HTTP exchange. Zero means 10s.
	Timeout time.Duration

	// MaxElapsed bounds retrying while the daemon is unreachable. Zero means
	// 5s; a negative value disables retries.
	MaxElapsed time.Duration
}

// Client is a typed wrapper over the vault routes. Errors returned by the
// vault are mapped back to the zerotrust sentinels so errors.Is works across
// the wire.
type Client struct {
	base       string
	http       *http.Client
	log        zerolog.Logger
	maxElapsed time.Duration
}

// New creates a client for the listener described by cfg.
func New(cfg server.Config, options Options) (*Client, error) {
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxElapsed := options.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = 5 * time.Second
	}

	c := &Client{log: options.Logger, maxElapsed: maxElapsed}

	switch {
	case cfg.Addr != "":
		base := cfg.Addr
		if !hasScheme(base) {
			base = "http://" + base
		}
		c.base = base
		c.http = &http.Client{Timeout: timeout}
	case cfg.Socket != "":
		socket := cfg.Socket
		c.base = "http://vault"
		c.http = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		}
	default:
		return nil, fmt.Errorf("either server.addr or server.socket is required")
	}

	return c, nil
}

func hasScheme(addr string) bool {
	u, err := url.Parse(addr)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Unlock submits pin to the vault.
func (c *Client) Unlock(ctx context.Context, pin int32) error {
	body, err := json.Marshal(server.UnlockRequest{PIN: pin})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/unlock", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeError(resp, http.StatusNoContent)
}

// Control sends a numeric control request with its raw argument.
func (c *Client) Control(ctx context.Context, code uint32, arg []byte) error {
	body, err := json.Marshal(server.ControlRequest{Code: code, Arg: arg})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/control", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeError(resp, http.StatusNoContent)
}

// Read fetches up to length bytes at offset and returns them with the
// advanced offset. An empty result means end-of-data.
func (c *Client) Read(ctx context.Context, offset int64, length int) ([]byte, int64, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("length", strconv.Itoa(length))

	resp, err := c.do(ctx, http.MethodGet, "/v1/secret?"+query.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}
	defer resp.Body.Close()

	if err = decodeError(resp, http.StatusOK); err != nil {
		return nil, offset, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	if err != nil {
		return nil, offset, fmt.Errorf("%w: response body: %v", zerotrust.ErrTransferFault, err)
	}
	next, err := strconv.ParseInt(resp.Header.Get(server.NextOffsetHeader), 10, 64)
	if err != nil {
		next = offset + int64(len(data))
	}
	return data, next, nil
}

// ReadAll reads the whole secret from offset zero.
func (c *Client) ReadAll(ctx context.Context) ([]byte, error) {
	data, _, err := c.Read(ctx, 0, zerotrust.MaxSecretSize)
	return data, err
}

// Write replaces the secret with data.
func (c *Client) Write(ctx context.Context, data []byte) (server.WriteResponse, error) {
	var out server.WriteResponse

	resp, err := c.do(ctx, http.MethodPut, "/v1/secret", data)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err = decodeError(resp, http.StatusOK); err != nil {
		return out, err
	}
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode write response: %w", err)
	}
	return out, nil
}

// Status returns the vault status.
func (c *Client) Status(ctx context.Context) (zerotrust.Status, error) {
	var st zerotrust.Status

	resp, err := c.do(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	if err = decodeError(resp, http.StatusOK); err != nil {
		return st, err
	}
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

// do sends one request, retrying with exponential backoff only while the
// daemon cannot be reached. Any HTTP response ends the retry loop.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil && method != http.MethodPut {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err = c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || !isConnectionError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 100 * time.Millisecond
		exp.MaxElapsedTime = c.maxElapsed
		policy = exp
	}

	notify := func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", wait).Msg("vault unreachable, retrying")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", zerotrust.ErrInterrupted, ctx.Err())
		}
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	return resp, nil
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// decodeError turns a non-expected status into the matching vault sentinel.
func decodeError(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}

	var e server.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e); err != nil || e.Code == "" {
		return fmt.Errorf("unexpected status %d from vault", resp.StatusCode)
	}
	return &RemoteError{Status: resp.StatusCode, Code: e.Code, Message: e.Error, err: server.ErrorForCode(e.Code)}
}

// RemoteError is an error reported by the vault daemon.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("vault: %s (%d)", e.Message, e.Status)
}

func (e *RemoteError) Unwrap() error {
	return e.err
}
