// Package pubsub holds the single persistent broker connection of a household.
package pubsub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ziggonext/internal/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"go.uber.org/zap"
)

var (
	// ErrAuthenticationRejected is returned when the broker still refuses the
	// credentials after one refresh
	ErrAuthenticationRejected = errors.New("broker rejected credentials")

	// ErrTransport is returned for any other connect failure and for a lost connection
	ErrTransport = errors.New("broker transport error")

	// ErrNotConnected is returned by Publish before Connect succeeded
	ErrNotConnected = errors.New("not connected")
)

const (
	// DeviceTypeController is the device type the controller announces itself as
	DeviceTypeController = "HGO"

	defaultBufferSize = 256
	connectTimeout    = 30 * time.Second
	subscribeTimeout  = 10 * time.Second
	disconnectQuiesce = 250
)

// Transport is the publish/subscribe surface boxes use
type Transport interface {
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
}

// CredentialSource supplies the broker username and password. With refresh
// set, the credentials are fetched anew instead of served from cache.
type CredentialSource interface {
	BrokerCredentials(ctx context.Context, refresh bool) (username, password string, err error)
}

// Message is an inbound broker message
type Message struct {
	Topic   string
	Payload []byte
}

// Options configures a Channel
type Options struct {
	// Broker is a host name (connected as wss://host:443/mqtt) or a full broker URL
	Broker     string
	ClientID   string
	BufferSize int
}

// Channel is the household's broker connection. Inbound messages are delivered
// in arrival order on Messages(). The broker's receive path never waits on the
// consumer: messages queue in memory until Messages() is drained.
type Channel struct {
	opts      Options
	creds     CredentialSource
	logger    *zap.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu            sync.Mutex
	client        mqtt.Client
	connected     bool
	householdID   string
	subscriptions []string
	subscribed    map[string]bool

	messages chan Message
	lost     chan error

	queueMu sync.Mutex
	queue   []Message
	wake    chan struct{}
	pumping sync.Once
}

// NewChannel creates an unconnected channel
func NewChannel(opts Options, creds CredentialSource, logger *zap.Logger) *Channel {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &Channel{
		opts:       opts,
		creds:      creds,
		logger:     logger.Named("pubsub"),
		newClient:  mqtt.NewClient,
		subscribed: make(map[string]bool),
		messages:   make(chan Message, opts.BufferSize),
		lost:       make(chan error, 1),
		wake:       make(chan struct{}, 1),
	}
}

// Messages returns the inbound message stream
func (c *Channel) Messages() <-chan Message {
	return c.messages
}

// ConnectionLost receives an ErrTransport-wrapped error when an established
// connection drops. The connection is not re-established automatically.
func (c *Channel) ConnectionLost() <-chan error {
	return c.lost
}

// ClientID returns the controller's synthetic client id
func (c *Channel) ClientID() string {
	return c.opts.ClientID
}

// HouseholdID returns the household the channel is connected for
func (c *Channel) HouseholdID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.householdID
}

// IsConnected reports whether the channel has a live connection
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the connection. An authorization refusal triggers exactly one
// credential refresh and reconnect. After connecting, the channel registers
// itself and replays earlier subscriptions.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	username, password, err := c.creds.BrokerCredentials(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to get broker credentials: %w", err)
	}

	client, err := c.dial(ctx, username, password)
	if errors.Is(err, ErrAuthenticationRejected) {
		c.logger.Warn("Broker refused credentials, refreshing and retrying once")
		if username, password, err = c.creds.BrokerCredentials(ctx, true); err != nil {
			return fmt.Errorf("failed to refresh broker credentials: %w", err)
		}
		client, err = c.dial(ctx, username, password)
	}
	if err != nil {
		metrics.BrokerConnects.WithLabelValues("failed").Inc()
		return err
	}
	metrics.BrokerConnects.WithLabelValues("connected").Inc()

	c.mu.Lock()
	c.client = client
	c.connected = true
	c.householdID = username
	replay := append([]string(nil), c.subscriptions...)
	c.subscribed = make(map[string]bool)
	c.subscriptions = nil
	c.mu.Unlock()

	c.logger.Info("Connected to broker",
		zap.String("broker", c.brokerURL()),
		zap.String("client_id", c.opts.ClientID))

	if err := c.register(username); err != nil {
		return err
	}
	for _, topic := range replay {
		if err := c.Subscribe(topic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) brokerURL() string {
	if strings.Contains(c.opts.Broker, "://") {
		return c.opts.Broker
	}
	return fmt.Sprintf("wss://%s:443/mqtt", c.opts.Broker)
}

func (c *Channel) dial(ctx context.Context, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL()).
		SetClientID(c.opts.ClientID).
		SetUsername(username).
		SetPassword(password).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetDefaultPublishHandler(c.onMessage).
		SetConnectionLostHandler(c.onConnectionLost)

	client := c.newClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}

	if err := token.Error(); err != nil {
		if errors.Is(err, packets.ErrorRefusedNotAuthorised) || errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationRejected, err)
		}
		return nil, fmt.Errorf("%w: connect failed: %v", ErrTransport, err)
	}
	return client, nil
}

// register subscribes the household topics and announces the controller as a
// running device. It runs once per successful connect.
func (c *Channel) register(householdID string) error {
	for _, topic := range registrationTopics(householdID) {
		if err := c.Subscribe(topic); err != nil {
			return err
		}
	}

	announce, err := json.Marshal(map[string]string{
		"source":     c.opts.ClientID,
		"state":      "ONLINE_RUNNING",
		"deviceType": DeviceTypeController,
	})
	if err != nil {
		return fmt.Errorf("failed to encode announce: %w", err)
	}
	return c.Publish(StatusTopic(householdID, c.opts.ClientID), announce)
}

// Subscribe subscribes to a topic. Repeated subscriptions are no-ops. Topics
// subscribed while disconnected are applied on the next Connect. A failed
// subscription is not remembered, so a later call retries it.
func (c *Channel) Subscribe(topic string) error {
	c.mu.Lock()
	if c.subscribed[topic] {
		c.mu.Unlock()
		return nil
	}
	client, connected := c.client, c.connected
	if !connected {
		c.remember(topic)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// No per-topic handler: every message goes once through the default
	// publish handler, however many subscriptions match it.
	token := client.Subscribe(topic, 0, nil)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("%w: subscribe to %s timed out", ErrTransport, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe to %s: %v", ErrTransport, topic, err)
	}

	c.mu.Lock()
	c.remember(topic)
	c.mu.Unlock()

	c.logger.Debug("Subscribed", zap.String("topic", topic))
	return nil
}

// remember records a topic for replay. c.mu must be held.
func (c *Channel) remember(topic string) {
	if c.subscribed[topic] {
		return
	}
	c.subscribed[topic] = true
	c.subscriptions = append(c.subscriptions, topic)
}

// Publish sends a message without waiting for delivery
func (c *Channel) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	client, connected := c.client, c.connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	client.Publish(topic, 0, false, payload)
	c.logger.Debug("Published", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}

// Disconnect closes the connection. It is a no-op when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	client, connected := c.client, c.connected
	c.connected = false
	c.mu.Unlock()

	if !connected {
		return
	}
	client.Disconnect(disconnectQuiesce)
	c.logger.Info("Disconnected from broker")
}

func (c *Channel) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)

	c.queueMu.Lock()
	c.queue = append(c.queue, Message{Topic: msg.Topic(), Payload: payload})
	c.queueMu.Unlock()

	c.pumping.Do(func() { go c.pump() })
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pump moves queued messages onto Messages() in arrival order
func (c *Channel) pump() {
	for range c.wake {
		for {
			c.queueMu.Lock()
			if len(c.queue) == 0 {
				c.queueMu.Unlock()
				break
			}
			msg := c.queue[0]
			c.queue[0] = Message{}
			c.queue = c.queue[1:]
			c.queueMu.Unlock()

			c.messages <- msg
		}
	}
}

func (c *Channel) onConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.logger.Error("Broker connection lost", zap.Error(err))
	select {
	case c.lost <- fmt.Errorf("%w: connection lost: %v", ErrTransport, err):
	default:
	}
}
