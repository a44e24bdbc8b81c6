package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpproxy"

	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/observability"
	"github.com/kbukum/httpreq/resilience"
	"github.com/kbukum/httpreq/security"
	"github.com/kbukum/httpreq/util"
)

// SendOptions are the per-request execution parameters of Transport.Do.
type SendOptions struct {
	// Proxies maps "http", "https" and optionally "no_proxy" to proxy
	// settings. Empty means the environment's proxy settings apply.
	Proxies map[string]string
	// Timeout bounds dialing, the TLS handshake and the wait for response
	// headers of each attempt, and the gap between two reads of a buffered
	// body. Zero means no timeout.
	Timeout time.Duration
	// TLS controls certificate verification. Nil disables verification.
	TLS *security.TLSConfig
	// Stream leaves the response body unread in Response.Stream.
	Stream bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for attempt and retry logs.
func WithLogger(l *logger.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// WithMetrics sets the instruments updated by the transport.
func WithMetrics(m *observability.TransportMetrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithBaseTransport sets the *http.Transport cloned for each distinct set
// of SendOptions. Defaults to a clone of http.DefaultTransport.
func WithBaseTransport(base *http.Transport) Option {
	return func(t *Transport) { t.base = base }
}

// Transport executes prepared requests with bounded retry and backoff. It
// is safe for concurrent use and is meant to be shared by many builders.
type Transport struct {
	cfg     Config
	policy  resilience.RetryPolicy
	base    *http.Transport
	log     *logger.Logger
	metrics *observability.TransportMetrics
	wait    func(context.Context, time.Duration) error

	mu      sync.Mutex
	clients map[string]*http.Client
	order   []string
}

// maxCachedClients bounds the client cache. Past it the oldest client is
// dropped and its idle connections closed.
const maxCachedClients = 32

// errBodyStalled marks a buffered body read aborted by the idle timeout.
var errBodyStalled = errors.New("response body read timed out")

// NewTransport creates a Transport from cfg. NewTransport(DefaultConfig())
// retries three times with a 0.3 backoff factor on 500, 502 and 504.
func NewTransport(cfg Config, opts ...Option) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:     cfg,
		policy:  cfg.RetryPolicy(),
		base:    http.DefaultTransport.(*http.Transport).Clone(),
		log:     logger.Get("httpclient"),
		clients: make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.metrics == nil {
		m, err := observability.NewTransportMetrics(observability.Meter())
		if err != nil {
			t.log.Warn("Transport metrics disabled", logger.MergeWithError(nil, err))
		}
		t.metrics = m
	}
	return t, nil
}

var (
	defaultOnce      sync.Once
	defaultTransport *Transport
)

// Default returns a process-wide Transport built from DefaultConfig.
func Default() *Transport {
	defaultOnce.Do(func() {
		t, err := NewTransport(DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("httpclient: default config rejected: %v", err))
		}
		defaultTransport = t
	})
	return defaultTransport
}

// Config returns the transport's effective configuration.
func (t *Transport) Config() Config {
	return t.cfg
}

// Do sends req, retrying according to the transport's policy.
//
// When the retry budget is spent on retryable statuses, the last response
// is returned together with an *Error of code ErrCodeRetriesExhausted.
// Other failures return a nil response and a classified *Error.
func (t *Transport) Do(ctx context.Context, req *http.Request, opts SendOptions) (*Response, error) {
	start := time.Now()
	method := req.Method

	ctx, span := observability.StartSpan(ctx, observability.SpanHTTPRequest, trace.WithAttributes(
		attribute.String(observability.AttrHTTPMethod, method),
		attribute.String(observability.AttrURL, req.URL.Redacted()),
	))
	defer span.End()

	log := t.log.WithFields(logger.Fields(logger.FieldMethod, method, logger.FieldURL, req.URL.Redacted()))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.WithFields(logger.Fields(logger.FieldRequestID, id))
		span.SetAttributes(attribute.String(observability.AttrRequestID, id))
	}

	client, err := t.clientFor(opts)
	if err != nil {
		return nil, t.fail(ctx, log, method, start, NewRequestError(err))
	}

	// A stalled buffered body is aborted by canceling the request context.
	var cancelRead context.CancelCauseFunc
	if !opts.Stream && opts.Timeout > 0 {
		ctx, cancelRead = context.WithCancelCause(ctx)
		defer cancelRead(nil)
	}

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	retries := 0

	resp, err := resilience.Retry(ctx, t.policy, resilience.Operation[*http.Response]{
		Method: method,
		Classify: func(resp *http.Response, err error) resilience.Category {
			if !replayable {
				return resilience.CategoryNone
			}
			if err != nil {
				_, cat := classify(err)
				return cat
			}
			if t.policy.IsRetryableStatus(resp.StatusCode) {
				return resilience.CategoryStatus
			}
			return resilience.CategoryNone
		},
		Discard: drainAndClose,
		OnRetry: func(e resilience.RetryEvent) {
			retries = e.Retry
			fields := logger.Fields(
				logger.FieldAttempt, e.Retry+1,
				logger.FieldBackoff, e.Backoff.Milliseconds(),
				"reason", e.Category.String(),
			)
			if e.Err != nil {
				fields = logger.MergeWithError(fields, e.Err)
			}
			log.Warn("Retrying request", fields)
			t.metrics.RecordRetry(ctx, method, e.Category.String())
		},
		Wait: t.wait,
	}, func(ctx context.Context, attempt int) (*http.Response, error) {
		attemptReq, err := rewind(ctx, req, attempt)
		if err != nil {
			return nil, err
		}
		t.metrics.RecordAttempt(ctx, method)
		log.Debug("Sending request", logger.Fields(logger.FieldAttempt, attempt+1))
		return client.Do(attemptReq)
	})
	span.SetAttributes(attribute.Int(observability.AttrRetryCount, retries))

	var exhausted *resilience.ExhaustedError
	switch {
	case err == nil:
		r, rerr := t.materialize(resp, opts, cancelRead)
		if rerr != nil {
			return nil, t.fail(ctx, log, method, start, rerr)
		}
		t.complete(ctx, log, method, start, r.StatusCode)
		return r, nil

	case errors.As(err, &exhausted) && exhausted.Err == nil && resp != nil:
		herr := NewRetriesExhaustedError(resp.StatusCode, exhausted.Retries)
		r, rerr := t.materialize(resp, opts, cancelRead)
		if rerr != nil {
			return nil, t.fail(ctx, log, method, start, rerr)
		}
		t.metrics.RecordRequest(ctx, method, r.StatusCode, time.Since(start))
		return r, t.fail(ctx, log, method, start, herr)

	default:
		cause := err
		if exhausted != nil {
			cause = exhausted.Err
		}
		herr, _ := classify(cause)
		herr.Retries = retries
		t.metrics.RecordRequest(ctx, method, 0, time.Since(start))
		return nil, t.fail(ctx, log, method, start, herr)
	}
}

// materialize converts resp, reading the body unless streaming.
func (t *Transport) materialize(resp *http.Response, opts SendOptions, cancel context.CancelCauseFunc) (*Response, *Error) {
	r := newResponse(resp)
	if opts.Stream {
		r.Stream = resp.Body
		return r, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp.Body, opts.Timeout, cancel)
	if err != nil {
		herr, _ := classify(fmt.Errorf("read response body: %w", err))
		herr.StatusCode = resp.StatusCode
		return nil, herr
	}
	r.Body = body
	return r, nil
}

// readBody reads body to the end, failing with errBodyStalled once no
// bytes arrive for idle.
func readBody(body io.Reader, idle time.Duration, cancel context.CancelCauseFunc) ([]byte, error) {
	if idle <= 0 || cancel == nil {
		return io.ReadAll(body)
	}

	var stalled atomic.Bool
	timer := time.AfterFunc(idle, func() {
		stalled.Store(true)
		cancel(errBodyStalled)
	})
	defer timer.Stop()

	data, err := io.ReadAll(&idleReader{r: body, timer: timer, idle: idle})
	if err != nil && stalled.Load() {
		return data, fmt.Errorf("%w: no data for %s: %v", errBodyStalled, idle, err)
	}
	return data, err
}

type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

func (t *Transport) complete(ctx context.Context, log *logger.Logger, method string, start time.Time, status int) {
	elapsed := time.Since(start)
	observability.SetSpanAttribute(ctx, observability.AttrHTTPStatusCode, status)
	t.metrics.RecordRequest(ctx, method, status, elapsed)
	log.Debug("Request completed", logger.MergeWithDuration(
		logger.Fields(logger.FieldStatusCode, status), elapsed))
}

func (t *Transport) fail(ctx context.Context, log *logger.Logger, method string, start time.Time, herr *Error) *Error {
	observability.SetSpanError(ctx, herr)
	if herr.StatusCode > 0 {
		observability.SetSpanAttribute(ctx, observability.AttrHTTPStatusCode, herr.StatusCode)
	}
	t.metrics.RecordError(ctx, method, herr.Code.String())

	fields := logger.MergeWithDuration(logger.Fields("code", herr.Code.String(), "retries", herr.Retries), time.Since(start))
	if herr.StatusCode > 0 {
		fields[logger.FieldStatusCode] = herr.StatusCode
	}
	log.Error("Request failed", logger.MergeWithError(fields, herr))
	return herr
}

// clientFor returns the cached client for opts, building it on first use.
// Clients with equal options share one connection pool. At most
// maxCachedClients are kept.
func (t *Transport) clientFor(opts SendOptions) (*http.Client, error) {
	key := cacheKey(opts)

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[key]; ok {
		return c, nil
	}

	tlsCfg, err := opts.TLS.Build()
	if err != nil {
		return nil, err
	}

	tr := t.base.Clone()
	tr.TLSClientConfig = tlsCfg
	if opts.Timeout > 0 {
		tr.DialContext = (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext
		tr.TLSHandshakeTimeout = opts.Timeout
		tr.ResponseHeaderTimeout = opts.Timeout
	}
	if len(opts.Proxies) > 0 {
		tr.Proxy = proxyFunc(opts.Proxies)
	}

	c := &http.Client{Transport: NewUserAgentInjector(tr, t.cfg.UserAgent)}
	if len(t.order) >= maxCachedClients {
		oldest := t.order[0]
		t.order = t.order[1:]
		t.clients[oldest].CloseIdleConnections()
		delete(t.clients, oldest)
	}
	t.clients[key] = c
	t.order = append(t.order, key)
	return c, nil
}

// CloseIdleConnections closes idle connections of every cached client.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		c.CloseIdleConnections()
	}
}

func cacheKey(opts SendOptions) string {
	var b strings.Builder
	for _, k := range util.SortedKeys(opts.Proxies) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(opts.Proxies[k])
		b.WriteByte(';')
	}
	b.WriteByte('|')
	b.WriteString(opts.TLS.Key())
	b.WriteByte('|')
	b.WriteString(opts.Timeout.String())
	return b.String()
}

// proxyFunc resolves the scheme -> proxy map the way the environment
// variables HTTP_PROXY, HTTPS_PROXY and NO_PROXY are resolved.
func proxyFunc(proxies map[string]string) func(*http.Request) (*url.URL, error) {
	cfg := httpproxy.Config{
		HTTPProxy:  proxies["http"],
		HTTPSProxy: proxies["https"],
		NoProxy:    proxies["no_proxy"],
	}
	fn := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return fn(r.URL)
	}
}

// rewind returns the request for the given attempt, with a fresh body for
// every attempt after the first.
func rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	r := req.WithContext(ctx)
	if attempt == 0 || req.GetBody == nil {
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx. Transport logs and spans
// carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id attached to ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
