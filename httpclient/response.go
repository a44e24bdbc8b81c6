package httpclient

import (
	"encoding/json"
	"io"
	"net/http"
)

// Response is the result of a request. Buffered responses carry Body;
// streamed responses carry Stream, which the caller must Close.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Status is the status line, e.g. "200 OK".
	Status string
	// Header holds the response headers.
	Header http.Header
	// URL is the final URL after redirects.
	URL string
	// Body is the fully read body. Nil for streamed responses.
	Body []byte
	// Stream is the unread body of a streamed response.
	Stream io.ReadCloser
}

func newResponse(resp *http.Response) *Response {
	r := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		r.URL = resp.Request.URL.String()
	}
	return r
}

// Close releases a streamed body. It is a no-op for buffered responses.
func (r *Response) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// JSON decodes the body into v. Streamed responses are decoded from Stream.
func (r *Response) JSON(v any) error {
	if r.Stream != nil {
		return json.NewDecoder(r.Stream).Decode(v)
	}
	return json.Unmarshal(r.Body, v)
}
