// Package http is the instrumented transport used by every scenario.
//
// Each request made through a Client is timed with httptrace and recorded
// into the run's metric registry as the builtin http_* metrics. When a
// request carries a name, a tagged sub-metric such as
// http_req_duration{name:CreateBooking} is recorded as well.
package http

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// TransportConfig tunes the shared HTTP transport.
type TransportConfig struct {
	// Timeout for a whole request including reading the body
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultTransportConfig returns defaults suited to load generation.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient builds an *http.Client that all VUs share so that
// connections are pooled across the whole run.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Client issues requests against the target service and records them.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	registry   *metrics.Registry
	logger     *zap.Logger
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new client with the given options.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: NewHTTPClient(DefaultTransportConfig()),
		headers:    make(map[string]string),
		logger:     zap.NewNop(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the base URL for the client
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying *http.Client, typically with the
// shared client from NewHTTPClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records every completed request into the registry.
func WithMetrics(reg *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.registry = reg
	}
}

// WithLogger sets the logger for transport diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes a request and returns the response with timing information.
//
// A transport error is returned as err with a nil response; it is still
// recorded as a failed request. A request aborted because ctx was cancelled
// is not recorded at all.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.Build(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	timing := TimingInfo{StartTime: time.Now()}

	phases := &phaseTrace{start: timing.StartTime}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), phases.clientTrace()))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		timing.Total = time.Since(timing.StartTime)
		c.record(req.Name, timing.Total, 0, true)
		c.logger.Debug("request failed",
			zap.String("name", req.Name),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, err
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	body, readErr := io.ReadAll(httpResp.Body)
	timing.ContentTransfer = time.Since(transferStart)
	timing.Total = time.Since(timing.StartTime)
	phases.fill(&timing)

	if readErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   timing.Total,
		Timing:     timing,
	}

	c.record(req.Name, timing.Total, len(body), readErr != nil || !req.IsExpected(resp.StatusCode))
	c.recordPhases(timing)
	if readErr != nil {
		return resp, readErr
	}
	return resp, nil
}

// phaseTrace collects the phases of one request. The httptrace hooks run on
// dial goroutines and on the transport's read loop, so every field is
// guarded by mu.
type phaseTrace struct {
	mu sync.Mutex

	start        time.Time
	connectStart time.Time
	tlsStart     time.Time
	wroteRequest time.Time

	connecting   time.Duration
	tlsHandshake time.Duration
	waiting      time.Duration
}

func (p *phaseTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		ConnectStart: func(string, string) {
			p.mu.Lock()
			p.connectStart = time.Now()
			p.mu.Unlock()
		},
		ConnectDone: func(_, _ string, err error) {
			p.mu.Lock()
			if err == nil && !p.connectStart.IsZero() {
				p.connecting = time.Since(p.connectStart)
			}
			p.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			p.mu.Lock()
			p.tlsStart = time.Now()
			p.mu.Unlock()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			p.mu.Lock()
			if err == nil && !p.tlsStart.IsZero() {
				p.tlsHandshake = time.Since(p.tlsStart)
			}
			p.mu.Unlock()
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			p.mu.Lock()
			p.wroteRequest = time.Now()
			p.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			p.mu.Lock()
			from := p.wroteRequest
			if from.IsZero() {
				from = p.start
			}
			p.waiting = time.Since(from)
			p.mu.Unlock()
		},
	}
}

// fill copies the collected phases into t. A reused connection leaves
// TCPConnect and TLSHandshake at zero.
func (p *phaseTrace) fill(t *TimingInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t.TCPConnect = p.connecting
	t.TLSHandshake = p.tlsHandshake
	t.TimeToFirstByte = p.waiting
}

// recordPhases writes the per-phase trends of a completed request.
func (c *Client) recordPhases(t TimingInfo) {
	if c.registry == nil {
		return
	}

	phases := []struct {
		name string
		d    time.Duration
	}{
		{metrics.HTTPReqConnecting, t.TCPConnect},
		{metrics.HTTPReqTLSHandshaking, t.TLSHandshake},
		{metrics.HTTPReqWaiting, t.TimeToFirstByte},
		{metrics.HTTPReqReceiving, t.ContentTransfer},
	}
	for _, phase := range phases {
		trend, err := c.registry.Trend(phase.name)
		if err != nil {
			c.logger.Warn("recording metric", zap.Error(err))
			continue
		}
		trend.Add(float64(phase.d) / float64(time.Millisecond))
	}
}

// record writes the builtin request metrics. A registry error means a user
// metric already claimed the name with another kind.
func (c *Client) record(name string, d time.Duration, received int, failed bool) {
	if c.registry == nil {
		return
	}

	ms := float64(d) / float64(time.Millisecond)

	names := []string{""}
	if name != "" {
		names = append(names, "{name:"+name+"}")
	}

	for _, tag := range names {
		if counter, err := c.registry.Counter(metrics.HTTPReqs + tag); err == nil {
			counter.Add(1)
		} else {
			c.logger.Warn("recording metric", zap.Error(err))
		}
		if trend, err := c.registry.Trend(metrics.HTTPReqDuration + tag); err == nil {
			trend.Add(ms)
		} else {
			c.logger.Warn("recording metric", zap.Error(err))
		}
		if rate, err := c.registry.Rate(metrics.HTTPReqFailed + tag); err == nil {
			rate.Add(failed)
		} else {
			c.logger.Warn("recording metric", zap.Error(err))
		}
	}

	if received > 0 {
		if counter, err := c.registry.Counter(metrics.DataReceived); err == nil {
			counter.Add(float64(received))
		}
	}
}
