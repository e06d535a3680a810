// Package mqtt reads queue statistics from a retained MQTT topic that the
// delivery workers publish to.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rule-console/config"
	"rule-console/internal/logger"
	"rule-console/internal/store"
)

// ErrNoSnapshot is wrapped in the NetworkError returned before the first
// stats message arrives.
var ErrNoSnapshot = fmt.Errorf("no queue stats received yet")

type snapshot struct {
	stats    store.QueueStats
	received time.Time
}

// Feed keeps the latest queue stats published on a topic
type Feed struct {
	client        mqtt.Client
	topic         string
	qos           byte
	maxAge        time.Duration
	autoSubscribe bool
	logger        *logger.Logger
	now           func() time.Time

	latest    atomic.Pointer[snapshot]
	connected atomic.Bool
	received  atomic.Uint64
	rejected  atomic.Uint64
}

// NewFeed builds a feed and its MQTT client from configuration. The feed
// subscribes on every (re)connect.
func NewFeed(cfg *config.MQTTConfig, log *logger.Logger) (*Feed, error) {
	f := &Feed{
		topic:         cfg.StatsTopic,
		qos:           cfg.QoS,
		maxAge:        cfg.StatsMaxAge(),
		autoSubscribe: true,
		logger:        log,
		now:           time.Now,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute)

	opts.OnConnect = f.handleConnect
	opts.OnConnectionLost = f.handleDisconnect
	opts.OnReconnecting = f.handleReconnecting

	if cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	f.client = mqtt.NewClient(opts)
	return f, nil
}

// NewFeedWithClient creates a feed over a provided client (for testing)
func NewFeedWithClient(client mqtt.Client, topic string, qos byte, maxAge time.Duration, log *logger.Logger) *Feed {
	return &Feed{
		client: client,
		topic:  topic,
		qos:    qos,
		maxAge: maxAge,
		logger: log,
		now:    time.Now,
	}
}

// Start connects to the broker and subscribes to the stats topic
func (f *Feed) Start() error {
	if token := f.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	if f.autoSubscribe {
		return nil
	}
	f.connected.Store(true)
	return f.subscribe()
}

// Stop disconnects from the broker
func (f *Feed) Stop() {
	f.logger.Info("disconnecting from mqtt broker")
	if f.client.IsConnected() {
		if token := f.client.Unsubscribe(f.topic); token.Wait() && token.Error() != nil {
			f.logger.Warn("failed to unsubscribe from stats topic", "topic", f.topic, "error", token.Error())
		}
	}
	f.client.Disconnect(250)
	f.connected.Store(false)
}

// IsConnected returns current connection status
func (f *Feed) IsConnected() bool {
	return f.connected.Load()
}

// GetQueueStats returns the latest snapshot. A missing or stale snapshot is
// reported as a network failure so callers treat it like an unreachable
// service.
func (f *Feed) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, &store.NetworkError{Op: store.OpGetQueueStats, Err: err}
	}

	snap := f.latest.Load()
	if snap == nil {
		return nil, &store.NetworkError{Op: store.OpGetQueueStats, Err: ErrNoSnapshot}
	}
	if f.maxAge > 0 {
		if age := f.now().Sub(snap.received); age > f.maxAge {
			return nil, &store.NetworkError{
				Op:  store.OpGetQueueStats,
				Err: fmt.Errorf("queue stats are stale: last update %s ago", age.Round(time.Second)),
			}
		}
	}

	stats := snap.stats
	return &stats, nil
}

// HandleMessage decodes one stats message and replaces the snapshot
func (f *Feed) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	var stats store.QueueStats
	if err := json.Unmarshal(msg.Payload(), &stats); err != nil {
		f.rejected.Add(1)
		f.logger.Warn("failed to decode queue stats",
			"topic", msg.Topic(),
			"error", err)
		return
	}
	if stats.Waiting < 0 || stats.Active < 0 || stats.Completed < 0 || stats.Failed < 0 {
		f.rejected.Add(1)
		f.logger.Warn("ignoring queue stats with negative counts", "topic", msg.Topic())
		return
	}

	now := f.now()
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = now.UTC()
	}
	f.latest.Store(&snapshot{stats: stats, received: now})
	f.received.Add(1)

	f.logger.Debug("queue stats received",
		"topic", msg.Topic(),
		"waiting", stats.Waiting,
		"active", stats.Active,
		"retained", msg.Retained())
}

// Counts returns how many messages were accepted and rejected
func (f *Feed) Counts() (received, rejected uint64) {
	return f.received.Load(), f.rejected.Load()
}

func (f *Feed) subscribe() error {
	token := f.client.Subscribe(f.topic, f.qos, f.HandleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", f.topic, token.Error())
	}
	f.logger.Info("subscribed to queue stats", "topic", f.topic, "qos", f.qos)
	return nil
}

func (f *Feed) handleConnect(_ mqtt.Client) {
	f.logger.Info("mqtt client connected")
	f.connected.Store(true)

	// clean sessions drop subscriptions on reconnect
	if err := f.subscribe(); err != nil {
		f.logger.Error("failed to subscribe after connect", "error", err)
	}
}

func (f *Feed) handleDisconnect(_ mqtt.Client, err error) {
	f.logger.Error("mqtt connection lost", "error", err)
	f.connected.Store(false)
}

func (f *Feed) handleReconnecting(_ mqtt.Client, opts *mqtt.ClientOptions) {
	broker := ""
	if len(opts.Servers) > 0 {
		broker = opts.Servers[0].String()
	}
	f.logger.Info("mqtt client reconnecting", "broker", broker)
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if caFile == "" {
		return tlsConfig, nil
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return tlsConfig, nil
}

var _ store.StatsSource = (*Feed)(nil)
