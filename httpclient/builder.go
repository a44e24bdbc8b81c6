package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/httpreq/errors"
	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/security"
	"github.com/kbukum/httpreq/util"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerContentLength = "Content-Length"
	contentTypeJSON     = "application/json"
)

var builderMethods = []string{http.MethodDelete, http.MethodGet, http.MethodPost, http.MethodPut}

type credentials struct {
	username string
	password string
}

// Builder accumulates the state of a request and sends it through a
// Transport. State persists across Send calls until reset explicitly.
// A Builder is not safe for concurrent use; share the Transport instead.
type Builder struct {
	transport *Transport
	log       *logger.Logger

	method      string
	url         string
	headers     map[string]string
	body        []byte
	contentType string
	payload     map[string]any
	files       map[string]FileField
	proxies     map[string]string
	timeout     time.Duration
	verify      bool
	caBundle    string
	basicAuth   *credentials
	authorizer  Authorizer
}

// NewBuilder creates a GET builder sending through t. A nil t uses Default().
// TLS verification starts disabled; enable it with SetVerifySSL or
// SetCABundle.
func NewBuilder(t *Transport) *Builder {
	if t == nil {
		t = Default()
	}
	return &Builder{
		transport: t,
		log:       t.log,
		method:    http.MethodGet,
		headers:   make(map[string]string),
		payload:   make(map[string]any),
		timeout:   t.cfg.DefaultTimeout,
	}
}

// SetMethod sets the method. Only DELETE, GET, POST and PUT are accepted;
// case is normalized. POST and PUT default the content type to JSON unless
// SetContentType was called.
func (b *Builder) SetMethod(method string) error {
	m := strings.ToUpper(method)
	if !util.Contains(builderMethods, m) {
		return errors.InvalidMethod(m)
	}
	b.method = m
	if b.contentType == "" && (m == http.MethodPost || m == http.MethodPut) {
		b.headers[headerContentType] = contentTypeJSON
	}
	return nil
}

// SetURL sets the request URL.
func (b *Builder) SetURL(u string) *Builder {
	b.url = u
	return b
}

// SetBody sets the raw body and its Content-Length header. An empty body
// is ignored.
func (b *Builder) SetBody(body []byte) *Builder {
	if len(body) == 0 {
		return b
	}
	b.body = body
	b.headers[headerContentLength] = strconv.Itoa(len(body))
	return b
}

// SetJSON marshals v into the body slot and sets Content-Type to
// application/json and Content-Length to the encoded size. A nil v is
// ignored.
func (b *Builder) SetJSON(v any) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.InvalidInput("json", err.Error()).WithCause(err)
	}
	b.body = data
	b.headers[headerContentType] = contentTypeJSON
	b.headers[headerContentLength] = strconv.Itoa(len(data))
	return nil
}

// AddHeader sets a header to the string form of val, replacing any value
// under the same key.
func (b *Builder) AddHeader(key string, val any) *Builder {
	b.headers[key] = util.ToString(val)
	return b
}

// ResetHeaders clears all accumulated headers.
func (b *Builder) ResetHeaders() *Builder {
	b.headers = make(map[string]string)
	return b
}

// SetContentType sets the Content-Type header and records it as explicit.
func (b *Builder) SetContentType(ct string) *Builder {
	b.contentType = ct
	b.headers[headerContentType] = ct
	return b
}

// SetAuthorization sets the Authorization header.
func (b *Builder) SetAuthorization(value string) *Builder {
	b.headers[headerAuthorization] = value
	return b
}

// SetUserAgent sets the User-Agent header, overriding the transport default.
func (b *Builder) SetUserAgent(ua string) *Builder {
	b.headers[userAgentHeader] = ua
	return b
}

// SetBasicAuth writes a Basic Authorization header directly. Use it when
// credentials must travel in the header map, for example to be visible to
// an Authorizer.
func (b *Builder) SetBasicAuth(username, password string) *Builder {
	return b.SetAuthorization(basicAuthValue(username, password))
}

// SetBasicAuthCredentials sets credentials applied after the header map
// and any Authorizer, so they win over both.
func (b *Builder) SetBasicAuthCredentials(username, password string) *Builder {
	b.basicAuth = &credentials{username: username, password: password}
	return b
}

// SetAuthorizer sets the authorizer invoked on each Send.
func (b *Builder) SetAuthorizer(a Authorizer) *Builder {
	b.authorizer = a
	return b
}

// AddPayload adds a query parameter. With appendValue, values accumulate
// under key in order; otherwise the value replaces what was there.
func (b *Builder) AddPayload(key string, val any, appendValue bool) *Builder {
	if !appendValue {
		b.payload[key] = val
		return b
	}
	switch existing := b.payload[key].(type) {
	case nil:
		b.payload[key] = []any{val}
	case []any:
		b.payload[key] = append(existing, val)
	default:
		b.payload[key] = []any{existing, val}
	}
	return b
}

// ResetPayload clears all accumulated payload entries.
func (b *Builder) ResetPayload() *Builder {
	b.payload = make(map[string]any)
	return b
}

// SetFiles sets the files of a multipart upload, keyed by form field name.
// A nil map is ignored.
func (b *Builder) SetFiles(files map[string]FileField) *Builder {
	if files == nil {
		return b
	}
	b.files = maps.Clone(files)
	return b
}

// SetProxies sets the scheme -> proxy URL map ("http", "https", "no_proxy").
func (b *Builder) SetProxies(proxies map[string]string) *Builder {
	b.proxies = maps.Clone(proxies)
	return b
}

// SetTimeout sets the timeout in whole seconds. Values that are not Go
// integers, and integers that are not positive, are ignored. A
// time.Duration is taken as is.
func (b *Builder) SetTimeout(v any) *Builder {
	var secs int64
	switch n := v.(type) {
	case time.Duration:
		if n > 0 {
			b.timeout = n
		}
		return b
	case int:
		secs = int64(n)
	case int8:
		secs = int64(n)
	case int16:
		secs = int64(n)
	case int32:
		secs = int64(n)
	case int64:
		secs = n
	case uint:
		secs = int64(n)
	case uint8:
		secs = int64(n)
	case uint16:
		secs = int64(n)
	case uint32:
		secs = int64(n)
	case uint64:
		secs = int64(n)
	default:
		return b
	}
	if secs > 0 {
		b.timeout = time.Duration(secs) * time.Second
	}
	return b
}

// SetVerifySSL turns TLS certificate verification on or off.
func (b *Builder) SetVerifySSL(verify bool) *Builder {
	b.verify = verify
	return b
}

// SetCABundle verifies server certificates against the PEM bundle at path.
func (b *Builder) SetCABundle(path string) *Builder {
	b.caBundle = path
	b.verify = true
	return b
}

// Method returns the request method.
func (b *Builder) Method() string { return b.method }

// URL returns the request URL.
func (b *Builder) URL() string { return b.url }

// Body returns the body slot.
func (b *Builder) Body() []byte { return b.body }

// Headers returns a copy of the accumulated headers.
func (b *Builder) Headers() map[string]string { return maps.Clone(b.headers) }

// Payload returns a copy of the accumulated payload.
func (b *Builder) Payload() map[string]any { return maps.Clone(b.payload) }

// Files returns a copy of the files of the upload.
func (b *Builder) Files() map[string]FileField { return maps.Clone(b.files) }

// Proxies returns a copy of the proxy map.
func (b *Builder) Proxies() map[string]string { return maps.Clone(b.proxies) }

// Timeout returns the per-attempt timeout.
func (b *Builder) Timeout() time.Duration { return b.timeout }

// VerifySSL reports whether TLS certificates will be verified.
func (b *Builder) VerifySSL() bool { return b.verify }

// CABundle returns the CA bundle path, if any.
func (b *Builder) CABundle() string { return b.caBundle }

// ContentType returns the explicitly set content type.
func (b *Builder) ContentType() string { return b.contentType }

// Authorization returns the Authorization header from the header map.
func (b *Builder) Authorization() string { return b.headers[headerAuthorization] }

// UserAgent returns the User-Agent header from the header map.
func (b *Builder) UserAgent() string { return b.headers[userAgentHeader] }

// BasicAuthCredentials returns the credentials set with
// SetBasicAuthCredentials.
func (b *Builder) BasicAuthCredentials() (username, password string, ok bool) {
	if b.basicAuth == nil {
		return "", "", false
	}
	return b.basicAuth.username, b.basicAuth.password, true
}

// Authorizer returns the registered authorizer, or nil.
func (b *Builder) Authorizer() Authorizer { return b.authorizer }

// Send assembles the request and dispatches it through the transport.
//
// The order is fixed: the request is prepared (URL, query string, body);
// the Authorizer sees the prepared request and its headers are merged into
// the header map; the header map is applied; basic credentials are applied
// last. Transport failures are returned as an *errors.AppError with code
// REQUEST_FAILED wrapping the transport's *Error. When retries are
// exhausted on a retryable status the final response is returned as well.
func (b *Builder) Send(ctx context.Context, stream bool) (*Response, error) {
	requestID := uuid.NewString()
	ctx = WithRequestID(ctx, requestID)

	req, err := b.prepare(ctx)
	if err != nil {
		return nil, err
	}

	if b.authorizer != nil {
		headers, err := b.authorizer.Authorize(req)
		if err != nil {
			return nil, errors.AuthorizationFailed(err)
		}
		maps.Copy(b.headers, headers)
	}

	multipartType := req.Header.Get(headerContentType)
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	if multipartType != "" {
		req.Header.Set(headerContentType, multipartType)
	}

	if b.basicAuth != nil {
		req.SetBasicAuth(b.basicAuth.username, b.basicAuth.password)
	}

	resp, err := b.transport.Do(ctx, req, SendOptions{
		Proxies: b.proxies,
		Timeout: b.timeout,
		TLS:     b.tlsConfig(),
		Stream:  stream,
	})
	if err != nil {
		return resp, errors.RequestFailed(err)
	}

	b.log.Info(fmt.Sprintf("Status Code: %d", resp.StatusCode), logger.Fields(
		logger.FieldRequestID, requestID,
		logger.FieldMethod, b.method,
		logger.FieldStatusCode, resp.StatusCode,
	))
	return resp, nil
}

// prepare builds the request with its final URL and body.
func (b *Builder) prepare(ctx context.Context) (*http.Request, error) {
	if b.url == "" {
		return nil, errors.MissingField("url")
	}
	u, err := url.Parse(b.url)
	if err != nil {
		return nil, errors.InvalidInput("url", err.Error()).WithCause(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.InvalidInput("url", fmt.Sprintf("%q is not an absolute URL", b.url))
	}

	if len(b.payload) > 0 {
		q := u.Query()
		for _, k := range util.SortedKeys(b.payload) {
			for _, v := range payloadValues(b.payload[k]) {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	body := b.body
	var multipartType string
	if len(b.files) > 0 {
		if len(b.body) > 0 {
			return nil, errors.InvalidRequest("a raw body cannot be sent together with files")
		}
		body, multipartType, err = encodeMultipart(b.files)
		if err != nil {
			return nil, errors.InvalidInput("files", err.Error()).WithCause(err)
		}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, u.String(), reader)
	if err != nil {
		return nil, errors.InvalidRequest(err.Error()).WithCause(err)
	}
	if multipartType != "" {
		req.Header.Set(headerContentType, multipartType)
	}
	return req, nil
}

func payloadValues(v any) []string {
	switch vals := v.(type) {
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, util.ToString(item))
		}
		return out
	case []string:
		return vals
	default:
		return []string{util.ToString(v)}
	}
}

func (b *Builder) tlsConfig() *security.TLSConfig {
	if !b.verify && b.caBundle == "" {
		return nil
	}
	return &security.TLSConfig{Verify: b.verify, CABundle: b.caBundle}
}

// String renders the builder state for diagnostics.
func (b *Builder) String() string {
	var sb strings.Builder
	row := func(k, v string) {
		fmt.Fprintf(&sb, "  %-29s%-50s\n", k, v)
	}

	fmt.Fprintf(&sb, "\n%s\n", center("Request", 80, '_'))
	fmt.Fprintf(&sb, "\n%-40s\n", "HTTP Settings")
	row("HTTP Method", b.method)
	row("Request URL", b.url)
	row("Content Type", b.contentType)
	row("Body", string(b.body))

	if len(b.headers) > 0 {
		fmt.Fprintf(&sb, "\n%-40s\n", "Headers")
		for _, k := range util.SortedKeys(b.headers) {
			row(k, b.headers[k])
		}
	}
	if len(b.payload) > 0 {
		fmt.Fprintf(&sb, "\n%-40s\n", "Payload")
		for _, k := range util.SortedKeys(b.payload) {
			row(k, util.ToString(b.payload[k]))
		}
	}
	return sb.String()
}

func center(s string, width int, fill rune) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(string(fill), left) + s + strings.Repeat(string(fill), pad-left)
}
