package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the release version of the binary.
func Version() string {
	return strings.TrimSpace(version)
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper by setting the User-Agent header
// before delegating to the wrapped transport.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return HTTPClientWithTransport(http.DefaultTransport, timeout)
}

// HTTPClientWithTransport is like HTTPClient but sends requests through the
// given transport.
func HTTPClientWithTransport(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: transport,
			userAgent: "Enever-Go/" + Version(),
		},
		Timeout: timeout,
	}
}
