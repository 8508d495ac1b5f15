// Package tlsutil builds the TLS settings shared by the REST client and the
// stream dialer.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ClientConfig returns a TLS config trusting the system roots plus the PEM
// certificates in caFile. It returns nil when neither caFile nor insecure
// is set, so callers keep Go's defaults.
func ClientConfig(caFile string, insecure bool) (*tls.Config, error) {
	if caFile == "" && !insecure {
		return nil, nil
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		config.RootCAs = pool
	}

	// Only for self-hosted endpoints with throwaway certificates.
	config.InsecureSkipVerify = insecure
	return config, nil
}

// NewHTTPClient creates an HTTP client using tlsConfig. A nil tlsConfig
// yields a client on the default transport.
func NewHTTPClient(timeout time.Duration, tlsConfig *tls.Config) *http.Client {
	if tlsConfig == nil {
		return &http.Client{Timeout: timeout}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
