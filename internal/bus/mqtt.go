package bus

import (
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"podcleaner/internal/logger"
)

// MQTTConfig is the subset of connection parameters the MQTT backend
// needs; internal/config.MQTTConfig satisfies this shape.
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// MQTTBus is the external-broker MessageBus backend. On every (re)connect
// it resubscribes to every known topic, mirroring the original's
// _on_connect handler; handler panics are caught so one subscriber cannot
// disrupt the network loop or other subscribers.
type MQTTBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	client   mqtt.Client
	running  bool
}

// NewMQTTBus builds a paho client for cfg but does not connect; call
// Start to connect and begin the background network loop.
func NewMQTTBus(cfg MQTTConfig) *MQTTBus {
	b := &MQTTBus{handlers: make(map[string][]Handler)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false) // reconnection is driven explicitly below
	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = b.onDisconnect

	b.client = mqtt.NewClient(opts)
	return b
}

// Subscribe registers handler for topic, subscribing immediately on the
// broker if already connected.
func (b *MQTTBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	connected := b.client != nil && b.client.IsConnected()
	b.mu.Unlock()

	if connected {
		b.subscribeTopic(topic)
	}
}

func (b *MQTTBus) subscribeTopic(topic string) {
	token := b.client.Subscribe(topic, 1, b.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Error("mqtt_subscribe_failed", "topic", topic, "error", err)
	}
}

// Start connects to the broker. onConnect resubscribes to every topic
// that currently has a handler.
func (b *MQTTBus) Start() error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()

	token := b.client.Connect()
	token.Wait()
	return token.Error()
}

// Stop disconnects from the broker; onDisconnect will see running=false
// and will not attempt to reconnect.
func (b *MQTTBus) Stop() error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return nil
}

// Publish serializes msg as JSON and publishes it to msg.Topic.
func (b *MQTTBus) Publish(msg Message) {
	payload, err := msg.ToJSON()
	if err != nil {
		logger.Error("mqtt_marshal_failed", "topic", msg.Topic, "error", err)
		return
	}
	token := b.client.Publish(msg.Topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Error("mqtt_publish_failed", "topic", msg.Topic, "error", err)
	}
}

func (b *MQTTBus) onConnect(mqtt.Client) {
	b.mu.RLock()
	topics := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	for _, t := range topics {
		b.subscribeTopic(t)
	}
	logger.Info("mqtt_connected", "topics", len(topics))
}

func (b *MQTTBus) onDisconnect(_ mqtt.Client, err error) {
	logger.Warn("mqtt_disconnected", "error", err)

	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	if running {
		token := b.client.Connect()
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				logger.Error("mqtt_reconnect_failed", "error", err)
			}
		}()
	}
}

func (b *MQTTBus) onMessage(_ mqtt.Client, raw mqtt.Message) {
	msg, err := FromJSON(raw.Payload())
	if err != nil {
		logger.Error("mqtt_decode_failed", "topic", raw.Topic(), "error", err)
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[msg.Topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, msg)
	}
}

func (b *MQTTBus) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("mqtt_handler_panic", "topic", msg.Topic, "recover", r)
		}
	}()
	h(msg)
}
