// Package emitter publishes cache status snapshots to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/config"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
)

// StatusMessage is the JSON payload published on the status topic.
type StatusMessage struct {
	Timestamp time.Time       `json:"timestamp"`
	ClientID  string          `json:"client_id"`
	Status    protocol.Status `json:"status"`
}

// StatusEmitter publishes status snapshots to MQTT
type StatusEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewStatusEmitter creates an emitter for cfg. Call Connect before Publish.
func NewStatusEmitter(cfg config.MQTTConfig, logger *slog.Logger) *StatusEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &StatusEmitter{cfg: cfg, logger: logger}
	e.client = mqtt.NewClient(e.clientOptions())
	return e
}

// NewStatusEmitterWithClient uses an existing client (shared connections,
// tests).
func NewStatusEmitterWithClient(cfg config.MQTTConfig, client mqtt.Client, logger *slog.Logger) *StatusEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusEmitter{cfg: cfg, client: client, logger: logger}
}

func (e *StatusEmitter) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
			"action", "waiting for automatic reconnection")
	}

	return opts
}

// brokerURL accepts "host:port" as well as a full URL.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes connection to the MQTT broker
func (e *StatusEmitter) Connect(ctx context.Context) error {
	e.logger.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish publishes one status snapshot
func (e *StatusEmitter) Publish(st protocol.Status) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(StatusMessage{
		Timestamp: time.Now().UTC(),
		ClientID:  e.cfg.ClientID,
		Status:    st,
	})
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.logger.Debug("status published",
		"topic", e.cfg.Topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
		"done", st.Done)

	return nil
}

// Run publishes a snapshot from poll every interval_s until ctx is done.
// Poll and publish failures are logged, not fatal.
func (e *StatusEmitter) Run(ctx context.Context, poll func(context.Context) (protocol.Status, error)) {
	interval := time.Duration(e.cfg.IntervalS) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := poll(ctx)
			if err != nil {
				e.logger.Debug("status poll failed", "error", err)
				continue
			}
			if err := e.Publish(st); err != nil {
				e.logger.Warn("status publish failed", "topic", e.cfg.Topic, "error", err)
			}
		}
	}
}

// Disconnect closes the MQTT connection
func (e *StatusEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *StatusEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

func (e *StatusEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *StatusEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *StatusEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
