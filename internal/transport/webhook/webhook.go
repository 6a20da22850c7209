// Package webhook delivers relay notifications by POSTing JSON to the
// address token, which is expected to be an HTTP(S) URL. An endpoint that
// is gone (404/410) is a permanently invalid address.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

type Config struct {
	Timeout time.Duration // per-request; 0 means default
}

const defaultTimeout = 8 * time.Second

type Client struct {
	http *http.Client
	log  logx.Logger
}

type payload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func (c *Client) Send(ctx context.Context, address string, msg transport.Message) error {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return transport.PermanentInvalid(fmt.Errorf("address %q is not an http(s) url", address))
	}

	body, err := json.Marshal(payload{Title: msg.Title, Body: msg.Body, Link: msg.Link})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return transport.Transient(err)
		}
		// Connection-level failures are retry-eligible; the endpoint may be
		// down rather than gone.
		return transport.Transient(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return transport.PermanentInvalid(fmt.Errorf("endpoint %s: %s", u.Host, resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return transport.Transient(fmt.Errorf("endpoint %s: %s", u.Host, resp.Status))
	default:
		return fmt.Errorf("endpoint %s: unexpected status %s", u.Host, resp.Status)
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
