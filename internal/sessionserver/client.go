// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package sessionserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/glowline/glowline/internal/executor"
)

// DefaultBaseURL is Mojang's hasJoined endpoint.
const DefaultBaseURL = "https://sessionserver.mojang.com/session/minecraft/hasJoined"

// DefaultTimeout bounds a verification call when none is configured.
const DefaultTimeout = 10 * time.Second

// CodeTransport marks network, timeout, and non-success status failures.
const CodeTransport = "VERIFICATION_TRANSPORT_FAILED"

const maxResponseBytes = 1 << 20

// Request is one hasJoined query. IP is optional.
type Request struct {
	Username   string
	ServerHash string
	IP         net.IP
}

// Callback receives the outcome of Verify: the raw body on success, or a
// transport error. Exactly one of the two is set.
type Callback func(body []byte, err error)

// Config configures a Client.
type Config struct {
	// BaseURL is the hasJoined endpoint. Defaults to DefaultBaseURL.
	BaseURL string
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// PreventProxy sends the client IP so the session server can reject
	// logins relayed through a different address.
	PreventProxy bool
	// HTTPClient overrides the transport. Its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// Client issues verification requests.
type Client struct {
	base         *url.URL
	http         *http.Client
	preventProxy bool
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewClient validates cfg and creates a Client with a no-op logger.
func NewClient(cfg Config) (*Client, error) {
	return NewClientWithLogger(cfg, slog.New(slog.DiscardHandler))
}

// NewClientWithLogger validates cfg and creates a Client.
func NewClientWithLogger(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("session_server_url", raw).Wrap(err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, oops.Code("CONFIG_INVALID").
			With("session_server_url", raw).
			Errorf("session server URL must be http or https")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	httpClient.Timeout = timeout

	return &Client{
		base:         base,
		http:         httpClient,
		preventProxy: cfg.PreventProxy,
		logger:       logger,
		tracer:       otel.Tracer("github.com/glowline/glowline/internal/sessionserver"),
	}, nil
}

// URL renders the query URL for req. Parameters keep the order
// username, serverId, ip. The ip parameter is only present with
// PreventProxy and an address that has an IP; otherwise the request goes
// out without it.
func (c *Client) URL(req Request) string {
	u := *c.base
	var q strings.Builder
	if u.RawQuery != "" {
		q.WriteString(u.RawQuery)
		q.WriteByte('&')
	}
	q.WriteString("username=")
	q.WriteString(url.QueryEscape(req.Username))
	q.WriteString("&serverId=")
	q.WriteString(url.QueryEscape(req.ServerHash))

	if c.preventProxy {
		if req.IP == nil {
			c.logger.Warn("client address has no IP, verifying without it",
				"event", "verify_ip_omitted",
				"username", req.Username,
			)
		} else {
			q.WriteString("&ip=")
			q.WriteString(url.QueryEscape(req.IP.String()))
		}
	}
	u.RawQuery = q.String()
	return u.String()
}

// Verify sends req on a new goroutine and returns immediately. When the
// call finishes, cb is submitted to exec; if exec no longer accepts work
// the outcome is dropped.
func (c *Client) Verify(ctx context.Context, req Request, exec executor.Executor, cb Callback) {
	target := c.URL(req)
	go func() {
		body, err := c.fetch(ctx, req, target)
		if submitErr := exec.Submit(func() { cb(body, err) }); submitErr != nil {
			c.logger.Debug("verification result dropped, connection gone",
				"event", "verify_result_dropped",
				"username", req.Username,
			)
		}
	}()
}

func (c *Client) fetch(ctx context.Context, req Request, target string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "sessionserver.has_joined",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("glowline.username", req.Username)),
	)
	defer span.End()

	body, status, err := c.get(ctx, target)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		return nil, oops.Code(CodeTransport).
			With("username", req.Username).
			With("status", status).
			Wrap(err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck // wrapped by fetch
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck // wrapped by fetch
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, resp.StatusCode, oops.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err //nolint:wrapcheck // wrapped by fetch
	}
	return body, resp.StatusCode, nil
}
