// Package controller wires the session, broker connection, catalogs and boxes
// of one household and runs the inbound dispatch loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ziggonext/internal/box"
	"ziggonext/internal/catalog"
	"ziggonext/internal/config"
	"ziggonext/internal/metadata"
	"ziggonext/internal/nowplaying"
	"ziggonext/internal/pubsub"
	"ziggonext/internal/session"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by box operations before Connect succeeded
var ErrNotConnected = errors.New("controller not connected")

// ErrUnknownChannel is returned when a channel title is not in the catalog
var ErrUnknownChannel = errors.New("unknown channel")

// Broker is the broker connection the controller drives
type Broker interface {
	pubsub.Transport
	Connect(ctx context.Context) error
	Disconnect()
	Messages() <-chan pubsub.Message
	ConnectionLost() <-chan error
}

// Controller is the household context: it owns the box registry and the channel
// catalog and passes them explicitly to the components that need them.
type Controller struct {
	cfg      *config.Config
	logger   *zap.Logger
	clientID string

	session  *session.Provider
	metadata *metadata.Client
	channels *catalog.Catalog
	source   *catalog.ChannelSource
	broker   Broker

	sessionRetryDelay time.Duration

	mu        sync.RWMutex
	registry  *box.Registry
	listeners []func(box.Snapshot)
}

// Option customizes a Controller
type Option func(*Controller)

// WithBroker replaces the broker connection (used in tests)
func WithBroker(b Broker) Option {
	return func(c *Controller) { c.broker = b }
}

// WithClientID fixes the controller's synthetic client id
func WithClientID(id string) Option {
	return func(c *Controller) { c.clientID = id }
}

// WithSessionRetryDelay sets the pause between session login attempts
func WithSessionRetryDelay(d time.Duration) Option {
	return func(c *Controller) { c.sessionRetryDelay = d }
}

// New creates a controller from configuration. Nothing connects until Connect.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Controller {
	provider := session.NewProvider(cfg.APIBaseURL, cfg.Username, cfg.Password, logger)
	c := &Controller{
		cfg:               cfg,
		logger:            logger.Named("controller"),
		clientID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		session:           provider,
		metadata:          metadata.NewClient(cfg.APIBaseURL, provider, cfg.MetadataRateLimit, logger),
		channels:          catalog.NewCatalog(),
		source:            catalog.NewChannelSource(cfg.APIBaseURL, logger),
		sessionRetryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.broker == nil {
		if cfg.MQTTDebug {
			pubsub.EnableLibraryLogging(logger)
		}
		c.broker = pubsub.NewChannel(pubsub.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: c.clientID,
		}, provider, logger)
	}
	return c
}

// ClientID returns the controller's synthetic client id
func (c *Controller) ClientID() string {
	return c.clientID
}

// Connect logs in, connects the broker, builds the box registry from the device
// listing, loads the channel catalog and registers every box.
func (c *Controller) Connect(ctx context.Context) error {
	s, err := c.login(ctx)
	if err != nil {
		return err
	}

	if err := c.broker.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	devices, err := catalog.ListDevices(ctx, c.session, c.cfg.PersonalizationURL(s.HouseholdID))
	if err != nil {
		return err
	}

	registry := box.NewRegistry(devices, c.cfg.PlatformTypes, box.Deps{
		HouseholdID: s.HouseholdID,
		ClientID:    c.clientID,
		ClientName:  c.cfg.ClientName,
		Transport:   c.broker,
		Resolver:    nowplaying.NewResolver(c.metadata, c.channels, c.logger),
	}, c.logger)
	registry.SetOnChange(func(b *box.Box) { c.notify(b.Snapshot()) })

	c.mu.Lock()
	c.registry = registry
	c.mu.Unlock()

	if err := c.LoadChannels(ctx); err != nil {
		// Boxes still report connectivity without a catalog
		c.logger.Error("Failed to load channels", zap.Error(err))
	}

	if err := registry.RegisterAll(); err != nil {
		return err
	}

	c.logger.Info("Controller connected",
		zap.String("household_id", s.HouseholdID),
		zap.Int("boxes", len(registry.All())))
	return nil
}

// login obtains the session, retrying transient failures up to the API cap
func (c *Controller) login(ctx context.Context) (session.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= session.MaxAPIAttempts; attempt++ {
		s, err := c.session.GetSession(ctx)
		if err == nil {
			return s, nil
		}
		if errors.Is(err, session.ErrAuthenticationFailed) {
			return session.Session{}, err
		}
		lastErr = err
		c.logger.Warn("Session login failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return session.Session{}, ctx.Err()
		case <-time.After(c.sessionRetryDelay):
		}
	}
	return session.Session{}, fmt.Errorf("login failed after %d attempts: %w", session.MaxAPIAttempts, lastErr)
}

// Run is the single consumer of inbound broker messages. It returns when ctx
// ends or the broker connection is lost.
func (c *Controller) Run(ctx context.Context) error {
	registry, err := c.currentRegistry()
	if err != nil {
		return err
	}

	messages := c.broker.Messages()
	lost := c.broker.ConnectionLost()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return err
		case msg := <-messages:
			registry.Dispatch(ctx, msg)
		}
	}
}

// Close disconnects from the broker
func (c *Controller) Close() {
	c.broker.Disconnect()
}

// OnChange registers a listener for box change notifications
func (c *Controller) OnChange(fn func(box.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify(s box.Snapshot) {
	c.mu.RLock()
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Controller) currentRegistry() (*box.Registry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.registry == nil {
		return nil, ErrNotConnected
	}
	return c.registry, nil
}

// StartChannelRefresh reloads the channel catalog on a cron schedule until ctx ends
func (c *Controller) StartChannelRefresh(ctx context.Context, schedule string) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		if err := c.LoadChannels(ctx); err != nil {
			c.logger.Error("Scheduled channel reload failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid channel refresh schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	c.logger.Info("Channel refresh scheduled", zap.String("schedule", schedule))

	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return nil
}

// LoadChannels fetches the channel listing and replaces the catalog
func (c *Controller) LoadChannels(ctx context.Context) error {
	channels, err := c.source.ListChannels(ctx)
	if err != nil {
		return err
	}
	c.channels.Replace(channels)
	c.logger.Info("Channels loaded", zap.Int("count", len(channels)))
	return nil
}

// Channels returns the current channel catalog ordered by channel number
func (c *Controller) Channels() []catalog.Channel {
	return c.channels.All()
}

// Recordings lists the household's network recordings
func (c *Controller) Recordings(ctx context.Context) ([]metadata.RecordingItem, error) {
	return c.metadata.Recordings(ctx)
}

// ShowRecordings lists the episodes of one recorded show
func (c *Controller) ShowRecordings(ctx context.Context, mediaGroupID string) (*metadata.RecordingShow, error) {
	return c.metadata.ShowRecordings(ctx, mediaGroupID)
}
