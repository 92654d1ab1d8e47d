package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// PublishedMessage records a publish for testing
type PublishedMessage struct {
	Topic   string
	Payload []byte
	Time    time.Time
}

// Decode unmarshals the payload into a generic map
func (p PublishedMessage) Decode() map[string]interface{} {
	var m map[string]interface{}
	_ = json.Unmarshal(p.Payload, &m)
	return m
}

// MockTransport implements Transport for testing
type MockTransport struct {
	mu            sync.Mutex
	published     []PublishedMessage
	subscriptions []string
	subscribed    map[string]bool
	subscribeErr  error
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		subscribed: make(map[string]bool),
	}
}

// Subscribe records a subscription; repeats are no-ops like the real channel
func (m *MockTransport) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	if m.subscribed[topic] {
		return nil
	}
	m.subscribed[topic] = true
	m.subscriptions = append(m.subscriptions, topic)
	return nil
}

// Publish records a publish
func (m *MockTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, PublishedMessage{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		Time:    time.Now(),
	})
	return nil
}

// SetSubscribeError makes subsequent subscriptions fail
func (m *MockTransport) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// GetPublished returns all recorded publishes
func (m *MockTransport) GetPublished() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	published := make([]PublishedMessage, len(m.published))
	copy(published, m.published)
	return published
}

// GetSubscriptions returns subscribed topics in order
func (m *MockTransport) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscriptions...)
}

// ClearPublished clears the publish history
func (m *MockTransport) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// MockBroker is an in-memory broker connection: a MockTransport that can also
// connect, deliver inbound messages and simulate connection loss.
type MockBroker struct {
	*MockTransport

	messages chan Message
	lost     chan error

	connMu     sync.Mutex
	connected  bool
	connects   int
	connectErr error
}

// NewMockBroker creates a disconnected mock broker
func NewMockBroker() *MockBroker {
	return &MockBroker{
		MockTransport: NewMockTransport(),
		messages:      make(chan Message, 64),
		lost:          make(chan error, 1),
	}
}

// Connect marks the broker connected unless a connect error is set
func (m *MockBroker) Connect(context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connects++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

// Disconnect marks the broker disconnected
func (m *MockBroker) Disconnect() {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false
}

// Messages returns the inbound message stream
func (m *MockBroker) Messages() <-chan Message { return m.messages }

// ConnectionLost signals simulated connection loss
func (m *MockBroker) ConnectionLost() <-chan error { return m.lost }

// SetConnectError makes subsequent connects fail
func (m *MockBroker) SetConnectError(err error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connectErr = err
}

// IsConnected reports whether Connect succeeded and Disconnect was not called
func (m *MockBroker) IsConnected() bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.connected
}

// Connects returns the number of connect attempts
func (m *MockBroker) Connects() int {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.connects
}

// Deliver queues an inbound message
func (m *MockBroker) Deliver(topic string, payload []byte) {
	m.messages <- Message{Topic: topic, Payload: payload}
}

// Drop simulates the broker dropping the connection
func (m *MockBroker) Drop(err error) {
	m.Disconnect()
	m.lost <- err
}
