package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxPageRedirects bounds redirects followed when fetching arbitrary web pages.
const MaxPageRedirects = 5

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// NewTransport returns a hardened transport. maxConnsPerHost <= 0 leaves the
// per-host limit unbounded.
func NewTransport(maxConnsPerHost int) *http.Transport {
	idlePerHost := 16
	if maxConnsPerHost > 0 {
		idlePerHost = maxConnsPerHost
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// 模型、嵌入、重排与搜索 API 共用一个连接池
var sharedTransport = sync.OnceValue(func() *http.Transport { return NewTransport(0) })

// SecureHTTPClient returns a client on the shared API transport.
// timeout 0 leaves deadlines to the request context.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport(),
	}
}

// PageClient returns a client for fetching third-party pages. It has its own
// transport, caps connections per host and stops after MaxPageRedirects.
func PageClient(maxConnsPerHost int) *http.Client {
	return &http.Client{
		Transport:     NewTransport(maxConnsPerHost),
		CheckRedirect: limitRedirects(MaxPageRedirects),
	}
}

var errTooManyRedirects = errors.New("too many redirects")

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, max)
		}
		return nil
	}
}
