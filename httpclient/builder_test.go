package httpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kbukum/httpreq/errors"
	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/security/tlstest"
)

// captured is what the test server saw of the last request.
type captured struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, func() captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		last captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = captured{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		}
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(newTestTransport(t, DefaultConfig()).Transport)
}

func TestBuilder_Defaults(t *testing.T) {
	b := newTestBuilder(t)
	assert.Equal(t, http.MethodGet, b.Method())
	assert.Equal(t, 300*time.Second, b.Timeout())
	assert.False(t, b.VerifySSL())
	assert.Empty(t, b.Headers())
	assert.Empty(t, b.Payload())
}

func TestBuilder_SetMethod_NormalizesCase(t *testing.T) {
	for _, m := range []string{"get", "Post", "put", "DELETE"} {
		b := newTestBuilder(t)
		require.NoError(t, b.SetMethod(m))
		assert.Equal(t, strings.ToUpper(m), b.Method())
	}
}

func TestBuilder_SetMethod_RejectsOthers(t *testing.T) {
	for _, m := range []string{"patch", "HEAD", "", "FETCH"} {
		b := newTestBuilder(t)
		err := b.SetMethod(m)
		require.Error(t, err, m)

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidMethod, appErr.Code)
		assert.Equal(t, strings.ToUpper(m), appErr.Details["value"])
		assert.Equal(t, http.MethodGet, b.Method(), "method is unchanged")
	}
}

func TestBuilder_SetMethod_DefaultsJSONContentType(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.SetMethod("post"))
	assert.Equal(t, "application/json", b.Headers()["Content-Type"])

	b = newTestBuilder(t)
	b.SetContentType("text/plain")
	require.NoError(t, b.SetMethod("put"))
	assert.Equal(t, "text/plain", b.Headers()["Content-Type"])

	b = newTestBuilder(t)
	require.NoError(t, b.SetMethod("delete"))
	assert.NotContains(t, b.Headers(), "Content-Type")
}

func TestBuilder_SetJSON_ThenBody(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.SetJSON(map[string]int{"a": 1}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(b.Body(), &decoded))
	assert.Equal(t, map[string]int{"a": 1}, decoded)
	assert.Equal(t, "application/json", b.Headers()["Content-Type"])

	b.SetBody([]byte("raw"))
	assert.Equal(t, []byte("raw"), b.Body())
	assert.Equal(t, "3", b.Headers()["Content-Length"])
	assert.Equal(t, "application/json", b.Headers()["Content-Type"], "content type survives")
}

func TestBuilder_SetJSON_RefreshesContentLength(t *testing.T) {
	b := newTestBuilder(t)
	b.SetBody([]byte("a much longer raw body"))
	require.NoError(t, b.SetJSON([]int{1}))

	assert.Equal(t, []byte("[1]"), b.Body())
	assert.Equal(t, "3", b.Headers()["Content-Length"])
	assert.Regexp(t, `Content-Length\s+3\s`, b.String())
}

func TestBuilder_SetJSON_Errors(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.SetJSON(nil))
	assert.Nil(t, b.Body())

	err := b.SetJSON(make(chan int))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestBuilder_SetBody_IgnoresEmpty(t *testing.T) {
	b := newTestBuilder(t)
	b.SetBody([]byte("first"))
	b.SetBody(nil)
	b.SetBody([]byte{})
	assert.Equal(t, []byte("first"), b.Body())
	assert.Equal(t, "5", b.Headers()["Content-Length"])
}

func TestBuilder_AddPayload(t *testing.T) {
	b := newTestBuilder(t)
	b.AddPayload("tag", "x", false)
	b.AddPayload("tag", "y", false)
	assert.Equal(t, map[string]any{"tag": "y"}, b.Payload())

	b = newTestBuilder(t)
	b.AddPayload("tag", "x", true)
	b.AddPayload("tag", "y", true)
	assert.Equal(t, map[string]any{"tag": []any{"x", "y"}}, b.Payload())

	b = newTestBuilder(t)
	b.AddPayload("tag", "x", false)
	b.AddPayload("tag", "y", true)
	assert.Equal(t, map[string]any{"tag": []any{"x", "y"}}, b.Payload())

	b.ResetPayload()
	assert.Empty(t, b.Payload())
}

func TestBuilder_AddHeader_CoercesValues(t *testing.T) {
	b := newTestBuilder(t)
	b.AddHeader("X-Count", 3)
	b.AddHeader("X-Flag", true)
	b.AddHeader("X-Count", 4)
	assert.Equal(t, map[string]string{"X-Count": "4", "X-Flag": "true"}, b.Headers())

	b.ResetHeaders()
	assert.Empty(t, b.Headers())
}

func TestBuilder_SetBasicAuth_Header(t *testing.T) {
	b := newTestBuilder(t)
	b.SetBasicAuth("u", "p")
	assert.Equal(t, "Basic dXA6cA==", b.Authorization())
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("u:p")), b.Authorization())
}

func TestBuilder_SetTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Duration
	}{
		{"string ignored", "abc", 300 * time.Second},
		{"float ignored", 1.5, 300 * time.Second},
		{"nil ignored", nil, 300 * time.Second},
		{"zero ignored", 0, 300 * time.Second},
		{"negative ignored", -5, 300 * time.Second},
		{"int seconds", 10, 10 * time.Second},
		{"int64 seconds", int64(20), 20 * time.Second},
		{"uint seconds", uint(30), 30 * time.Second},
		{"duration", 1500 * time.Millisecond, 1500 * time.Millisecond},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(t)
			b.SetTimeout(tc.in)
			assert.Equal(t, tc.want, b.Timeout())
		})
	}
}

func TestBuilder_SetFiles_NilIgnored(t *testing.T) {
	b := newTestBuilder(t)
	b.SetFiles(map[string]FileField{"report": {Data: []byte("x")}})
	b.SetFiles(nil)
	assert.Len(t, b.Files(), 1)
}

func TestBuilder_VerifySettings(t *testing.T) {
	b := newTestBuilder(t)
	assert.Nil(t, b.tlsConfig())

	b.SetVerifySSL(true)
	require.NotNil(t, b.tlsConfig())
	assert.True(t, b.tlsConfig().Verify)

	b = newTestBuilder(t)
	b.SetCABundle("/etc/ssl/ca.pem")
	assert.True(t, b.VerifySSL())
	assert.Equal(t, "/etc/ssl/ca.pem", b.tlsConfig().CABundle)
}

func TestBuilder_Send_PreparesRequest(t *testing.T) {
	srv, last := captureServer(t, http.StatusCreated)
	b := newTestBuilder(t)

	require.NoError(t, b.SetMethod("post"))
	b.SetURL(srv.URL+"/v2/indicators?existing=1").
		AddPayload("owner", "Acme Corp", false).
		AddPayload("tag", "a", true).
		AddPayload("tag", "b", true).
		AddHeader("X-Trace", "abc")
	require.NoError(t, b.SetJSON(map[string]string{"summary": "1.1.1.1"}))

	resp, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got := last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v2/indicators", got.Path)
	assert.Equal(t, []string{"1"}, got.Query["existing"])
	assert.Equal(t, []string{"Acme Corp"}, got.Query["owner"])
	assert.Equal(t, []string{"a", "b"}, got.Query["tag"])
	assert.Equal(t, "abc", got.Header.Get("X-Trace"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"summary":"1.1.1.1"}`, string(got.Body))
	assert.Equal(t, DefaultConfig().UserAgent, got.Header.Get("User-Agent"))
}

func TestBuilder_Send_UserAgentOverride(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	b.SetURL(srv.URL).SetUserAgent("inventory-sync/2.1")

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "inventory-sync/2.1", last().Header.Get("User-Agent"))
	assert.Equal(t, "inventory-sync/2.1", b.UserAgent())
}

func bearer(token string) Authorizer {
	return AuthorizerFunc(func(*http.Request) (map[string]string, error) {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	})
}

func TestBuilder_Send_AuthorizerHeader(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	b.SetURL(srv.URL).SetAuthorizer(bearer("t"))

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", last().Header.Get("Authorization"))
	assert.Equal(t, "Bearer t", b.Authorization(), "authorizer headers persist in the header map")
}

func TestBuilder_Send_BasicCredentialsOverrideAuthorizer(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	b.SetURL(srv.URL).
		SetAuthorizer(bearer("t")).
		SetBasicAuthCredentials("u", "p")

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Basic dXA6cA==", last().Header.Get("Authorization"))
}

func TestBuilder_Send_AuthorizerOverridesManualHeader(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	b.SetURL(srv.URL).
		SetBasicAuth("u", "p").
		SetAuthorizer(bearer("t"))

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", last().Header.Get("Authorization"))
}

func TestBuilder_Send_AuthorizerSeesPreparedRequest(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)

	var seenURL string
	var seenBody []byte
	b.SetURL(srv.URL+"/path").
		AddPayload("q", "1", false).
		SetBody([]byte("signed")).
		SetAuthorizer(AuthorizerFunc(func(r *http.Request) (map[string]string, error) {
			seenURL = r.URL.String()
			body, err := r.GetBody()
			if err != nil {
				return nil, err
			}
			seenBody, _ = io.ReadAll(body)
			return nil, nil
		}))

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/path?q=1", seenURL)
	assert.Equal(t, []byte("signed"), seenBody)
}

func TestBuilder_Send_AuthorizerError(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	cause := errors.New("token expired")
	b.SetURL(srv.URL).SetAuthorizer(AuthorizerFunc(func(*http.Request) (map[string]string, error) {
		return nil, cause
	}))

	_, err := b.Send(context.Background(), false)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthorizationFailed))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, last().Method, "nothing was sent")
}

func TestBuilder_Send_MissingURL(t *testing.T) {
	_, err := newTestBuilder(t).Send(context.Background(), false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))
}

func TestBuilder_Send_RelativeURL(t *testing.T) {
	b := newTestBuilder(t)
	b.SetURL("/relative")
	_, err := b.Send(context.Background(), false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestBuilder_Send_WrapsTransportFailure(t *testing.T) {
	b := newTestBuilder(t)
	b.SetURL("http://" + closedAddr(t) + "/")

	resp, err := b.Send(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRequestFailed, appErr.Code)
	assert.True(t, strings.HasPrefix(appErr.Message, "Failed making HTTP request ("))
	assert.True(t, strings.HasSuffix(appErr.Message, ")."))
	assert.True(t, IsConnection(err), "transport error is preserved as the cause")
}

func TestBuilder_Send_RetriesExhausted(t *testing.T) {
	srv, hits := statusSequence(t, 500)
	b := newTestBuilder(t)
	b.SetURL(srv.URL)

	resp, err := b.Send(context.Background(), false)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRequestFailed))
	assert.True(t, IsRetriesExhausted(err))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(4), hits.Load())
}

func TestBuilder_Send_LogsStatusCode(t *testing.T) {
	srv, _ := captureServer(t, http.StatusAccepted)
	var buf bytes.Buffer
	b := newTestBuilder(t)
	b.log = logger.NewWithWriter(&buf, &logger.Config{Level: "info", Format: "json"}, "test")
	b.SetURL(srv.URL)

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Status Code: 202", entry["message"])
	assert.Equal(t, float64(202), entry[logger.FieldStatusCode])
	assert.NotEmpty(t, entry[logger.FieldRequestID])
}

func TestBuilder_Send_StatePersistsAcrossSends(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	b.SetURL(srv.URL).AddHeader("X-Session", "s1").AddPayload("page", 1, false)

	for i := 0; i < 2; i++ {
		_, err := b.Send(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "s1", last().Header.Get("X-Session"))
		assert.Equal(t, []string{"1"}, last().Query["page"])
	}
}

func TestBuilder_Send_Files(t *testing.T) {
	srv, last := captureServer(t, http.StatusOK)
	b := newTestBuilder(t)
	require.NoError(t, b.SetMethod("post"))
	b.SetURL(srv.URL).SetFiles(map[string]FileField{
		"report":   {FileName: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		"metadata": {Reader: strings.NewReader(`{"k":"v"}`)},
	})

	_, err := b.Send(context.Background(), false)
	require.NoError(t, err)

	got := last()
	mediaType, params, err := mime.ParseMediaType(got.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType, "multipart type replaces the JSON default")

	mr := multipart.NewReader(bytes.NewReader(got.Body), params["boundary"])
	parts := map[string]string{}
	names := map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, _ := io.ReadAll(part)
		parts[part.FormName()] = string(data)
		names[part.FormName()] = part.FileName()
	}
	assert.Equal(t, map[string]string{"report": "%PDF", "metadata": `{"k":"v"}`}, parts)
	assert.Equal(t, "report.pdf", names["report"])
	assert.Equal(t, "metadata", names["metadata"])
}

func TestBuilder_Send_BodyAndFilesRejected(t *testing.T) {
	b := newTestBuilder(t)
	b.SetURL("http://example.com").
		SetBody([]byte("raw")).
		SetFiles(map[string]FileField{"f": {Data: []byte("x")}})

	_, err := b.Send(context.Background(), false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestBuilder_Send_CABundle(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	srv := tlstest.NewServer(t, certs, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	b := newTestBuilder(t)
	b.SetURL(srv.URL)
	_, err := b.Send(context.Background(), false)
	require.NoError(t, err, "unverified by default")

	b.SetVerifySSL(true)
	_, err = b.Send(context.Background(), false)
	require.Error(t, err)
	assert.True(t, IsTLS(err))

	b.SetCABundle(certs.CAFile)
	_, err = b.Send(context.Background(), false)
	require.NoError(t, err)
}

func TestBuilder_Send_Stream(t *testing.T) {
	srv, _ := statusSequence(t, 200)
	b := newTestBuilder(t)
	b.SetURL(srv.URL)

	resp, err := b.Send(context.Background(), true)
	require.NoError(t, err)
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(data))
}

func TestBuilder_String(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.SetMethod("post"))
	b.SetURL("https://api.example.com/v2").
		SetContentType("application/json").
		SetBody([]byte(`{"a":1}`)).
		AddHeader("X-B", "2").
		AddHeader("X-A", "1").
		AddPayload("owner", "Acme", false)

	out := b.String()
	assert.Contains(t, out, strings.Repeat("_", 36)+"Request"+strings.Repeat("_", 37))
	assert.Contains(t, out, "HTTP Settings")
	assert.Contains(t, out, "  HTTP Method                  POST")
	assert.Contains(t, out, "  Request URL                  https://api.example.com/v2")
	assert.Contains(t, out, "  Content Type                 application/json")
	assert.Contains(t, out, `  Body                         {"a":1}`)
	assert.Contains(t, out, "  owner                        Acme")
	assert.Less(t, strings.Index(out, "X-A"), strings.Index(out, "X-B"), "headers are sorted")
}
