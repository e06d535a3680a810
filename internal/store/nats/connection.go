package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"rule-console/config"
	"rule-console/internal/logger"
)

// Connect establishes a connection to the NATS servers carrying the rule
// service subjects.
func Connect(cfg *config.NATSConfig, log *logger.Logger) (*nats.Conn, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS server URLs provided")
	}

	// Create connection options
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected from NATS server", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("reconnected to NATS server", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	// Add authentication if configured
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	// Configure TLS if enabled
	if cfg.TLS.Enable {
		opts = append(opts, nats.ClientCert(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
	}

	log.Info("connecting to NATS server", "urls", cfg.URLs)

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	log.Info("connected to NATS server", "url", conn.ConnectedUrl())
	return conn, nil
}
