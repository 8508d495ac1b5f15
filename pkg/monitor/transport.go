package monitor

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/DeBrosOfficial/logwatch/pkg/api"
	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/config"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/tlsutil"
)

// NewAPIClient builds the REST client described by cfg.
func NewAPIClient(cfg *config.Config, tokens auth.TokenSource, logger *logging.ColoredLogger) (*api.Client, error) {
	tlsConfig, err := tlsutil.ClientConfig(cfg.API.CAFile, cfg.API.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.API.BaseURL, tokens,
		api.WithHTTPClient(tlsutil.NewHTTPClient(cfg.API.Timeout, tlsConfig)),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		api.WithLogger(logger)), nil
}

// NewDialer builds the websocket dialer described by cfg.
func NewDialer(cfg *config.Config) (*websocket.Dialer, error) {
	tlsConfig, err := tlsutil.ClientConfig(cfg.API.CAFile, cfg.API.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.API.Timeout,
		TLSClientConfig:  tlsConfig,
	}, nil
}
