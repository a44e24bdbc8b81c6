package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kbukum/httpreq/bootstrap"
	"github.com/kbukum/httpreq/config"
	"github.com/kbukum/httpreq/httpclient"
	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/util"
	"github.com/kbukum/httpreq/version"
)

// requestFlags holds everything the command line says about the request.
type requestFlags struct {
	method     string
	headers    []string
	data       string
	query      []string
	forms      []string
	user       string
	bearer     string
	hmacID     string
	hmacSecret string
	timeout    int
	proxy      string
	verify     bool
	caBundle   string
	include    bool
	stream     bool
	verbose    bool
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	f := &requestFlags{}

	cmd := &cobra.Command{
		Use:           "httpreq [flags] URL",
		Short:         "Send an HTTP request with automatic retries",
		Version:       version.GetShortVersion(),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags(), f, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.method, "request", "X", http.MethodGet, "HTTP method: GET, POST, PUT or DELETE")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, `header "Key: Value" (repeatable)`)
	flags.StringVarP(&f.data, "data", "d", "", "request body; @path reads it from a file")
	flags.StringArrayVarP(&f.query, "query", "q", nil, "query parameter key=value (repeatable, values accumulate)")
	flags.StringArrayVarP(&f.forms, "form", "F", nil, "multipart file field=@path (repeatable)")
	flags.StringVarP(&f.user, "user", "u", "", "basic auth credentials user:password")
	flags.StringVar(&f.bearer, "bearer", "", "bearer token")
	flags.StringVar(&f.hmacID, "hmac-id", "", "HMAC access id")
	flags.StringVar(&f.hmacSecret, "hmac-secret", "", "HMAC secret key")
	flags.IntVarP(&f.timeout, "timeout", "t", 0, "timeout in seconds (default from config, 300)")
	flags.StringVar(&f.proxy, "proxy", "", "proxy URL for http and https")
	flags.BoolVar(&f.verify, "verify", false, "verify the server's TLS certificate")
	flags.StringVar(&f.caBundle, "cacert", "", "verify the server against this PEM CA bundle")
	flags.BoolVarP(&f.include, "include", "i", false, "print the status line and response headers")
	flags.BoolVar(&f.stream, "stream", false, "stream the response body instead of buffering it")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log retries and print the request dump and startup summary")
	flags.StringVarP(&f.configFile, "config", "c", "", "path to the configuration file (default ./httpreq.yml)")
	flags.StringVar(&f.envFile, "env-file", "", "path to a .env file")

	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet, f *requestFlags, url string, stdout, stderr io.Writer) error {
	var opts []config.LoaderOption
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	}
	if f.envFile != "" {
		opts = append(opts, config.WithEnvFile(f.envFile))
	}
	settings, err := bootstrap.LoadSettings(opts...)
	if err != nil {
		return err
	}

	// stdout carries the response body.
	settings.Logging.Output = "stderr"
	if f.verbose {
		settings.Logging.Level = "debug"
	}

	log := logger.NewWithWriter(stderr, &settings.Logging, settings.Name)
	logger.SetGlobalLogger(log)

	clientOpts := []bootstrap.Option{bootstrap.WithLogger(log)}
	if f.verbose {
		clientOpts = append(clientOpts, bootstrap.WithSummary(stderr))
	}
	client, err := bootstrap.New(settings, clientOpts...)
	if err != nil {
		return err
	}

	return client.RunTask(ctx, func(ctx context.Context, c *bootstrap.Client) error {
		b, err := buildRequest(c.NewBuilder(), flags, f, url)
		if err != nil {
			return err
		}
		if f.verbose {
			fmt.Fprint(stderr, b.String())
		}

		resp, err := b.Send(ctx, f.stream)
		if resp != nil {
			defer func() { _ = resp.Close() }()
			if werr := writeResponse(stdout, resp, f.include); werr != nil && err == nil {
				err = werr
			}
		}
		return err
	})
}

// buildRequest applies the command line onto b.
func buildRequest(b *httpclient.Builder, flags *pflag.FlagSet, f *requestFlags, url string) (*httpclient.Builder, error) {
	if err := b.SetMethod(f.method); err != nil {
		return nil, err
	}
	b.SetURL(url)

	for _, h := range f.headers {
		key, val, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", h)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.EqualFold(key, "Content-Type") {
			b.SetContentType(val)
			continue
		}
		b.AddHeader(key, val)
	}

	for _, q := range f.query {
		key, val, _ := strings.Cut(q, "=")
		b.AddPayload(key, val, true)
	}

	if f.data != "" {
		body, err := readValue(f.data)
		if err != nil {
			return nil, err
		}
		b.SetBody(body)
	}

	if len(f.forms) > 0 {
		files := make(map[string]httpclient.FileField, len(f.forms))
		for _, form := range f.forms {
			field, path, ok := strings.Cut(form, "=@")
			if !ok {
				return nil, fmt.Errorf("invalid form %q, expected field=@path", form)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			files[field] = httpclient.FileField{FileName: filepath.Base(path), Data: data}
		}
		b.SetFiles(files)
	}

	var authorizers []httpclient.Authorizer
	if f.bearer != "" {
		authorizers = append(authorizers, httpclient.BearerAuthorizer{Token: f.bearer})
	}
	if f.hmacID != "" || f.hmacSecret != "" {
		authorizers = append(authorizers, httpclient.HMACAuthorizer{AccessID: f.hmacID, SecretKey: f.hmacSecret})
	}
	switch len(authorizers) {
	case 0:
	case 1:
		b.SetAuthorizer(authorizers[0])
	default:
		b.SetAuthorizer(httpclient.Chain(authorizers...))
	}
	if f.user != "" {
		user, pass, _ := strings.Cut(f.user, ":")
		b.SetBasicAuthCredentials(user, pass)
	}

	if flags.Changed("timeout") {
		b.SetTimeout(f.timeout)
	}
	if f.proxy != "" {
		b.SetProxies(map[string]string{"http": f.proxy, "https": f.proxy})
	}
	b.SetVerifySSL(f.verify)
	if f.caBundle != "" {
		b.SetCABundle(f.caBundle)
	}
	return b, nil
}

func writeResponse(w io.Writer, resp *httpclient.Response, include bool) error {
	if include {
		fmt.Fprintf(w, "%s\n", util.Coalesce(resp.Status, http.StatusText(resp.StatusCode)))
		if err := resp.Header.Write(w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if resp.Stream != nil {
		_, err := io.Copy(w, resp.Stream)
		return err
	}
	_, err := w.Write(resp.Body)
	return err
}

func readValue(v string) ([]byte, error) {
	if path, ok := strings.CutPrefix(v, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(v), nil
}
