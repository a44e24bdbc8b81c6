package httpclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authorizer produces the headers that authorize a prepared request. It is
// called once per send, after the URL, query string and body are final, so
// implementations may sign the request as it will be sent.
type Authorizer interface {
	Authorize(req *http.Request) (map[string]string, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(req *http.Request) (map[string]string, error)

// Authorize calls f(req).
func (f AuthorizerFunc) Authorize(req *http.Request) (map[string]string, error) {
	return f(req)
}

// NoAuth adds no headers.
type NoAuth struct{}

// Authorize implements Authorizer.
func (NoAuth) Authorize(*http.Request) (map[string]string, error) { return nil, nil }

// BasicAuthorizer sets a Basic Authorization header.
type BasicAuthorizer struct {
	Username string
	Password string
}

// Authorize implements Authorizer.
func (a BasicAuthorizer) Authorize(*http.Request) (map[string]string, error) {
	return map[string]string{"Authorization": basicAuthValue(a.Username, a.Password)}, nil
}

// BearerAuthorizer sets a Bearer Authorization header.
type BearerAuthorizer struct {
	Token string
}

// Authorize implements Authorizer.
func (a BearerAuthorizer) Authorize(*http.Request) (map[string]string, error) {
	if a.Token == "" {
		return nil, errors.New("bearer token is empty")
	}
	return map[string]string{"Authorization": "Bearer " + a.Token}, nil
}

// APIKeyAuthorizer sends an API key in a header. Header defaults to X-API-Key.
type APIKeyAuthorizer struct {
	Header string
	Key    string
}

// Authorize implements Authorizer.
func (a APIKeyAuthorizer) Authorize(*http.Request) (map[string]string, error) {
	name := a.Header
	if name == "" {
		name = "X-API-Key"
	}
	return map[string]string{name: a.Key}, nil
}

// HMACAuthorizer signs "<path>?<query>:<METHOD>:<unix timestamp>" with
// HMAC-SHA256 and sends
//
//	Timestamp: <unix timestamp>
//	Authorization: <Prefix> <AccessID>:<base64 signature>
//
// Prefix defaults to "HMAC".
type HMACAuthorizer struct {
	AccessID  string
	SecretKey string
	Prefix    string
	// Now returns the signing time. Defaults to time.Now.
	Now func() time.Time
}

// Authorize implements Authorizer.
func (a HMACAuthorizer) Authorize(req *http.Request) (map[string]string, error) {
	if a.AccessID == "" || a.SecretKey == "" {
		return nil, errors.New("hmac access id and secret key are required")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	prefix := a.Prefix
	if prefix == "" {
		prefix = "HMAC"
	}

	timestamp := strconv.FormatInt(now().Unix(), 10)
	path := req.URL.EscapedPath()
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	mac := hmac.New(sha256.New, []byte(a.SecretKey))
	mac.Write([]byte(path + ":" + req.Method + ":" + timestamp))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"Timestamp":     timestamp,
		"Authorization": prefix + " " + a.AccessID + ":" + signature,
	}, nil
}

// JWTAuthorizer sends a short-lived HS256 token bound to the request's
// method and URL as a Bearer Authorization header.
type JWTAuthorizer struct {
	Secret  []byte
	Issuer  string
	Subject string
	// TTL is the token lifetime. Defaults to one minute.
	TTL time.Duration
	// Now returns the issue time. Defaults to time.Now.
	Now func() time.Time
}

// RequestClaims are the claims carried by tokens from JWTAuthorizer.
type RequestClaims struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	jwt.RegisteredClaims
}

// Authorize implements Authorizer.
func (a JWTAuthorizer) Authorize(req *http.Request) (map[string]string, error) {
	if len(a.Secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	ttl := a.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	issued := now()
	claims := RequestClaims{
		Method: req.Method,
		URL:    req.URL.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.Issuer,
			Subject:   a.Subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type chain []Authorizer

// Chain runs authorizers in order and merges their headers; later
// authorizers win on conflicting keys. The first error aborts the chain.
func Chain(authorizers ...Authorizer) Authorizer {
	return chain(authorizers)
}

func (c chain) Authorize(req *http.Request) (map[string]string, error) {
	merged := make(map[string]string)
	for _, a := range c {
		if a == nil {
			continue
		}
		headers, err := a.Authorize(req)
		if err != nil {
			return nil, err
		}
		maps.Copy(merged, headers)
	}
	return merged, nil
}

func basicAuthValue(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
