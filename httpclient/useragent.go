package httpclient

import "net/http"

const userAgentHeader = "User-Agent"

// UserAgentInjector is an http.RoundTripper that sets a User-Agent on
// requests that carry none.
type UserAgentInjector struct {
	next      http.RoundTripper
	userAgent string
}

// NewUserAgentInjector wraps next so that requests without a User-Agent
// header are sent with userAgent.
func NewUserAgentInjector(next http.RoundTripper, userAgent string) http.RoundTripper {
	return &UserAgentInjector{next: next, userAgent: userAgent}
}

// RoundTrip implements http.RoundTripper. The caller's request is left
// unmodified.
func (t *UserAgentInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(userAgentHeader) == "" && t.userAgent != "" {
		r := *req
		r.Header = req.Header.Clone()
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(userAgentHeader, t.userAgent)
		req = &r
	}
	return t.next.RoundTrip(req)
}
