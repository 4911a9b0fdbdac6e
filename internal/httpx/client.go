package httpx

import (
	"net"
	"net/http"
	"time"
)

const userAgent = "ytup/1.0 (+https://github.com/lvcoi/ytup)"

var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 4,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 60 * time.Second,
	IdleConnTimeout:       90 * time.Second,
}

func CloseIdleConnections() {
	sharedTransport.CloseIdleConnections()
}

type agentTransport struct {
	base http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewAPIClient returns a client for short JSON API calls: bounded by timeout
// and retried on transient failures.
func NewAPIClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewRetryTransport(&agentTransport{base: sharedTransport}, DefaultRetryConfig),
	}
}

// NewTransferClient returns a client for long body transfers. It never retries
// on its own and has no overall timeout; callers bound it with a context.
func NewTransferClient() *http.Client {
	return &http.Client{Transport: &agentTransport{base: sharedTransport}}
}
