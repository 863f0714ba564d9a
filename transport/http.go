// Package transport builds the HTTP client shared by every convention scope.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
)

// MaxRedirects matches the redirect limit of net/http's default policy.
const MaxRedirects = 10

type noRedirectKey struct{}

// WithoutRedirects marks ctx so that a request made with it returns the redirect reply itself
// instead of following it.
func WithoutRedirects(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRedirectKey{}, true)
}

func redirectsDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRedirectKey{}).(bool)
	return v
}

// Options configures NewHTTPClient.
type Options struct {
	// Timeout bounds every request, including reading the body. Zero means none; per-request
	// timeouts can still be applied through the request context.
	Timeout time.Duration
	// VerifyTLS turns certificate verification on. Lab servers normally use self-signed
	// certificates, so it is off unless asked for.
	VerifyTLS bool
}

// NewHTTPClient returns a client with HTTP/2 enabled over TLS, a cookie jar scoped by the
// public suffix list, and a redirect policy that honors WithoutRedirects.
func NewHTTPClient(opts Options) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.VerifyTLS, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("failed to enable HTTP/2: %w", err)
	}

	return &http.Client{
		Transport:     tr,
		Jar:           jar,
		Timeout:       opts.Timeout,
		CheckRedirect: checkRedirect,
	}, nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if redirectsDisabled(req.Context()) {
		return http.ErrUseLastResponse
	}
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	return nil
}
