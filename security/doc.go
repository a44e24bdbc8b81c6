// Package security holds the TLS verification settings applied to
// outgoing requests.
//
// Verification is disabled unless the caller enables it, either with
// Verify or by pointing CABundle at a PEM bundle:
//
//	cfg := security.TLSConfig{Verify: true, CABundle: "/etc/ssl/internal-ca.pem"}
//	tlsConfig, err := cfg.Build()
package security
