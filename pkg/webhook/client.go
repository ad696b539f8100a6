// Package webhook delivers slacklog payloads to incoming-webhook URLs.
//
// The client sends exactly once per call. Retries, batching and rate
// limiting are left to the caller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"slacklog/pkg/slacklog"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "slacklog/1"
	maxErrorBody     = 512
)

type Config struct {
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

// Client posts payloads as JSON. It implements slacklog.Sender.
type Client struct {
	http      *http.Client
	userAgent string
}

var _ slacklog.Sender = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	tr := cfg.Transport
	if tr == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = 4
		tr = t
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout, Transport: tr},
		userAgent: cfg.UserAgent,
	}
}

// Send posts p to target. Any failure is a *DeliveryError.
func (c *Client) Send(ctx context.Context, p slacklog.Payload, target string) error {
	u, err := ValidateTarget(target)
	if err != nil {
		return err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{Kind: KindPayload, Target: redact(u), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Kind: KindDestination, Target: redact(u), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &DeliveryError{Kind: KindNetwork, Target: redact(u), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{
			Kind:       KindStatus,
			Target:     redact(u),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ValidateTarget checks that target is a non-empty absolute http(s) URL.
func ValidateTarget(target string) (*url.URL, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return nil, &DeliveryError{Kind: KindDestination, Err: ErrEmptyTarget}
	}
	u, err := url.Parse(t)
	if err != nil {
		return nil, &DeliveryError{Kind: KindDestination, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &DeliveryError{Kind: KindDestination, Target: redact(u), Err: ErrBadTarget}
	}
	return u, nil
}

// redact keeps scheme and host only; webhook paths are secrets.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Host == "" {
		return u.Scheme + ":"
	}
	return u.Scheme + "://" + u.Host
}
