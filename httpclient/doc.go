// Package httpclient sends HTTP requests assembled by a Builder through a
// shared, retrying Transport.
//
// A Transport holds the retry policy: by default three retries with a 0.3
// backoff factor on 500, 502 and 504. Connection failures are retried for
// any method; read failures and retryable statuses only for idempotent
// methods. One Transport is meant to be shared by all builders.
//
//	t, err := httpclient.NewTransport(httpclient.DefaultConfig())
//
//	b := httpclient.NewBuilder(t)
//	if err := b.SetMethod("post"); err != nil { ... }
//	b.SetURL("https://api.example.com/v2/indicators").
//	    AddPayload("owner", "Acme", false).
//	    SetAuthorizer(httpclient.HMACAuthorizer{AccessID: id, SecretKey: key})
//	_ = b.SetJSON(indicator)
//
//	resp, err := b.Send(ctx, false)
//
// Send applies authorization in a fixed order: the Authorizer signs the
// fully prepared request and its headers are merged into the builder's
// header map, the header map is applied, and credentials from
// SetBasicAuthCredentials are applied last.
//
// TLS certificates are not verified unless SetVerifySSL(true) or
// SetCABundle is used.
package httpclient
