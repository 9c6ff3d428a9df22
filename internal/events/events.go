// Package events publishes relay liveness transitions and frame notices
// to an MQTT broker for downstream alerting.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/firesight/frame-relay/internal/config"
	"github.com/firesight/frame-relay/internal/logger"
	"github.com/firesight/frame-relay/pkg/types"
)

var log = logger.Named("Events")

const (
	queueSize      = 256
	publishTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// FrameNotice announces one accepted frame. The image itself is not sent.
type FrameNotice struct {
	Size      int    `json:"size"`
	Time      string `json:"time"`
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
}

// Publisher receives relay events. Implementations must not block ingest.
type Publisher interface {
	PublishStatus(status types.FireStatus)
	PublishFrame(notice FrameNotice)
	Close()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishStatus(types.FireStatus) {}

func (Nop) PublishFrame(FrameNotice) {}

func (Nop) Close() {}

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTTPublisher queues events and publishes them from a single goroutine,
// so a slow broker never stalls the HTTP handlers.
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	client client

	queue chan message
	done  chan struct{}
	once  sync.Once

	// OnPublish, when set, is called after every publish attempt.
	OnPublish func(err error)
}

// Connect dials the broker in cfg and starts the publish loop. Callers
// should use New unless they need the error.
func Connect(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "frame-relay-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("Connected to broker %s as %s", cfg.Broker, clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("Connection to %s lost, reconnecting: %v", cfg.Broker, err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisher(cfg, c), nil
}

func newMQTTPublisher(cfg config.MQTTConfig, c client) *MQTTPublisher {
	p := &MQTTPublisher{
		cfg:    cfg,
		client: c,
		queue:  make(chan message, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// New returns an MQTT publisher for cfg, or Nop when no broker is set or
// the broker is unreachable. Relay operation never depends on MQTT.
func New(cfg config.MQTTConfig) Publisher {
	if cfg.Broker == "" {
		return Nop{}
	}
	p, err := Connect(cfg)
	if err != nil {
		log.Error("Event publishing disabled: %v", err)
		return Nop{}
	}
	return p
}

// StatusTopic is where liveness transitions are published (retained).
func (p *MQTTPublisher) StatusTopic() string {
	return p.cfg.TopicPrefix + "/status"
}

// FrameTopic is where frame notices are published.
func (p *MQTTPublisher) FrameTopic() string {
	return p.cfg.TopicPrefix + "/frames"
}

// PublishStatus queues a retained status message.
func (p *MQTTPublisher) PublishStatus(status types.FireStatus) {
	p.enqueue(p.StatusTopic(), true, status)
}

// PublishFrame queues a frame notice when frame events are enabled.
func (p *MQTTPublisher) PublishFrame(notice FrameNotice) {
	if !p.cfg.FrameEvents {
		return
	}
	p.enqueue(p.FrameTopic(), false, notice)
}

func (p *MQTTPublisher) enqueue(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.report(fmt.Errorf("marshal %s event: %w", topic, err))
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- message{topic: topic, retained: retained, payload: payload}:
	default:
		p.report(fmt.Errorf("event queue full, dropping %s", topic))
	}
}

func (p *MQTTPublisher) run() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			p.report(p.publish(msg))
		}
	}
}

func (p *MQTTPublisher) publish(msg message) error {
	token := p.client.Publish(msg.topic, p.cfg.QoS, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	log.Debug("Published %d bytes to %s", len(msg.payload), msg.topic)
	return nil
}

func (p *MQTTPublisher) report(err error) {
	if err != nil {
		log.Warn("%v", err)
	}
	if p.OnPublish != nil {
		p.OnPublish(err)
	}
}

// Close stops the publish loop and disconnects with a short grace period.
func (p *MQTTPublisher) Close() {
	p.once.Do(func() {
		close(p.done)
		p.client.Disconnect(250)
		log.Info("Disconnected")
	})
}
