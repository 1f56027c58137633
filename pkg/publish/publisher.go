// Package publish mirrors gaze frames, tracking changes and calibration
// results to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/config"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/stats"
)

// Topic suffixes below the configured prefix.
const (
	TopicFrame       = "frame"
	TopicTracking    = "tracking"
	TopicCalibration = "calibration"
)

const (
	queueSize      = 256
	publishTimeout = 2 * time.Second
)

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a broker connection for cfg.
func Connect(cfg *config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("MQTT connection lost", "error", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			slog.Info("MQTT connected", "broker", cfg.Broker)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// TrackingMessage is the payload of the tracking topic.
type TrackingMessage struct {
	Tracking  bool      `json:"tracking"`
	Timestamp time.Time `json:"ts"`
}

// Publisher queues messages and sends them from Run. Publishing never
// blocks the caller: when the queue is full the message is dropped.
type Publisher struct {
	client        Client
	prefix        string
	qos           byte
	frameInterval time.Duration
	stats         *stats.Tracker
	queue         chan message

	mu        sync.Mutex
	lastFrame time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithStats counts queued, sent and dropped messages in tr.
func WithStats(tr *stats.Tracker) Option {
	return func(p *Publisher) { p.stats = tr }
}

// New creates a publisher for the given client.
func New(client Client, cfg *config.MQTTConfig, opts ...Option) *Publisher {
	p := &Publisher{
		client:        client,
		prefix:        cfg.TopicPrefix,
		qos:           byte(cfg.QoS),
		frameInterval: cfg.FrameRate.D(),
		queue:         make(chan message, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Topic returns the full topic name for suffix.
func (p *Publisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

// PublishFrame queues f, at most once per frame interval.
func (p *Publisher) PublishFrame(f gaze.Frame) {
	now := time.Now()
	p.mu.Lock()
	if now.Sub(p.lastFrame) < p.frameInterval {
		p.mu.Unlock()
		return
	}
	p.lastFrame = now
	p.mu.Unlock()

	p.enqueue(TopicFrame, false, f)
}

// PublishTracking queues a retained tracking state change.
func (p *Publisher) PublishTracking(tracking bool) {
	p.enqueue(TopicTracking, true, TrackingMessage{Tracking: tracking, Timestamp: time.Now().UTC()})
}

// RecordCalibration implements calibration.Recorder. The outcome is sent
// retained so late subscribers see the latest session.
func (p *Publisher) RecordCalibration(_ context.Context, o calibration.Outcome) error {
	if !p.enqueue(TopicCalibration, true, o) {
		return fmt.Errorf("mqtt queue full, calibration %s not published", o.RunID)
	}
	return nil
}

func (p *Publisher) enqueue(suffix string, retained bool, v any) bool {
	p.track((*stats.Tracker).TrackReceived)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("MQTT marshal failed", "topic", suffix, "error", err)
		p.track((*stats.Tracker).TrackFailure)
		return false
	}
	select {
	case p.queue <- message{topic: p.Topic(suffix), retained: retained, payload: payload}:
		return true
	default:
		p.track((*stats.Tracker).TrackDropped)
		return false
	}
}

// Run sends queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			p.send(m)
		}
	}
}

func (p *Publisher) send(m message) {
	token := p.client.Publish(m.topic, p.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Warn("MQTT publish timed out", "topic", m.topic)
		p.track((*stats.Tracker).TrackFailure)
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("MQTT publish failed", "topic", m.topic, "error", err)
		p.track((*stats.Tracker).TrackFailure)
		return
	}
	p.track((*stats.Tracker).TrackAccepted)
}

func (p *Publisher) track(fn func(*stats.Tracker, string)) {
	if p.stats != nil {
		fn(p.stats, stats.StreamMQTT)
	}
}
