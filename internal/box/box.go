// Package box tracks the connectivity and playback state of each set-top box
// and sends commands to them.
package box

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"ziggonext/internal/metrics"
	"ziggonext/internal/nowplaying"
	"ziggonext/internal/pubsub"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver derives a PlayingInfo from a detailed status
type Resolver interface {
	Resolve(ctx context.Context, status *nowplaying.Status) (nowplaying.PlayingInfo, error)
}

// Deps are the collaborators shared by all boxes of a household
type Deps struct {
	HouseholdID string
	ClientID    string
	// ClientName is announced as the sender of push-to-TV commands
	ClientName string
	Transport  pubsub.Transport
	Resolver   Resolver
}

// Box is the state machine of one set-top box. All state access goes through mu;
// the change callback runs after mu is released.
type Box struct {
	id     string
	name   string
	deps   Deps
	logger *zap.Logger
	newID  func() string

	mu       sync.Mutex
	state    State
	info     nowplaying.PlayingInfo
	onChange func()
}

// New creates a box in the UNKNOWN state
func New(id, name string, deps Deps, logger *zap.Logger) *Box {
	return &Box{
		id:     id,
		name:   name,
		deps:   deps,
		logger: logger.Named("box").With(zap.String("box_id", id)),
		newID:  uuid.NewString,
		state:  StateUnknown,
	}
}

// ID returns the device id
func (b *Box) ID() string { return b.id }

// Name returns the display name
func (b *Box) Name() string { return b.name }

// State returns the current connectivity state
func (b *Box) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Info returns the current playback projection
func (b *Box) Info() nowplaying.PlayingInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// Snapshot returns a consistent copy of the box state
func (b *Box) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{ID: b.id, Name: b.name, State: b.state, Info: b.info}
}

// Available reports whether the box has reported a connectivity state
func (b *Box) Available() bool {
	s := b.State()
	return s == StateRunning || s == StateStandby
}

// SetOnChange sets the callback invoked after every processed update
func (b *Box) SetOnChange(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Box) notify() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Register subscribes to the box's status topics and asks for its state
func (b *Box) Register() error {
	h := b.deps.HouseholdID
	for _, topic := range []string{
		pubsub.StatusTopic(h, b.id),
		pubsub.LocalRecordingsTopic(h, b.id),
		pubsub.LocalRecordingsCapacityTopic(h, b.id),
	} {
		if err := b.deps.Transport.Subscribe(topic); err != nil {
			return fmt.Errorf("failed to subscribe box %s: %w", b.id, err)
		}
	}
	return b.probe()
}

// HandleConnectivity applies a connectivity update. The first sighting
// subscribes the device-scoped topics and probes before the state is applied.
func (b *Box) HandleConnectivity(state State) {
	b.mu.Lock()
	first := b.state == StateUnknown
	b.mu.Unlock()

	if first {
		b.bootstrap()
	}

	b.mu.Lock()
	previous := b.state
	b.state = state
	if state == StateStandby {
		b.info = nowplaying.PlayingInfo{}
	}
	b.mu.Unlock()

	if previous != state {
		metrics.BoxState.WithLabelValues(b.id, string(previous)).Set(0)
		metrics.BoxState.WithLabelValues(b.id, string(state)).Set(1)
		b.logger.Info("Box state changed",
			zap.String("from", string(previous)),
			zap.String("to", string(state)))
	}

	if state == StateRunning {
		if err := b.probe(); err != nil {
			b.logger.Warn("Status probe failed", zap.Error(err))
		}
	}

	b.notify()
}

func (b *Box) bootstrap() {
	h := b.deps.HouseholdID
	if err := b.probe(); err != nil {
		b.logger.Warn("Status probe failed", zap.Error(err))
	}
	for _, topic := range []string{
		pubsub.DeviceTopic(h, b.deps.ClientID),
		pubsub.DeviceTopic(h, b.id),
		pubsub.StatusTopic(h, b.id),
	} {
		if err := b.deps.Transport.Subscribe(topic); err != nil {
			b.logger.Warn("Subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// HandleStatus resolves a detailed status and replaces the playback projection.
// Malformed payloads leave the box unchanged and fire no notification.
func (b *Box) HandleStatus(ctx context.Context, status *nowplaying.Status) error {
	info, err := b.deps.Resolver.Resolve(ctx, status)
	switch {
	case errors.Is(err, nowplaying.ErrUnhandledMode):
		b.logger.Debug("Status without playback projection", zap.String("ui_status", status.UIStatus))
		b.notify()
		return nil
	case err != nil:
		return err
	}

	b.mu.Lock()
	b.info = info
	b.mu.Unlock()

	b.logger.Debug("Playing info updated",
		zap.String("source_type", string(info.SourceType)),
		zap.String("title", info.Title),
		zap.Bool("paused", info.Paused))
	b.notify()
	return nil
}

// probe asks the box to push its detailed status. The answer arrives as an
// ordinary inbound message.
func (b *Box) probe() error {
	return b.publish(TypeGetUIStatus, probeMessage{
		ID:     b.newID(),
		Type:   TypeGetUIStatus,
		Source: b.deps.ClientID,
	})
}

func (b *Box) publish(kind string, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	if err := b.deps.Transport.Publish(pubsub.DeviceTopic(b.deps.HouseholdID, b.id), payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	metrics.CommandsPublished.WithLabelValues(kind).Inc()
	return nil
}

// command publishes a command followed by a status probe
func (b *Box) command(kind string, msg interface{}) error {
	if err := b.publish(kind, msg); err != nil {
		return err
	}
	return b.probe()
}
