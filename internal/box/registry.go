package box

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ziggonext/internal/catalog"
	"ziggonext/internal/metrics"
	"ziggonext/internal/nowplaying"
	"ziggonext/internal/pubsub"

	"go.uber.org/zap"
)

// ErrUnknownBox is returned for device ids not in the registry
var ErrUnknownBox = errors.New("unknown box")

// Registry owns the boxes of a household. It is populated once and never
// changes afterwards.
type Registry struct {
	boxes  map[string]*Box
	order  []string
	logger *zap.Logger
}

// NewRegistry creates a box for every device whose platform type is allowed.
// Other devices are skipped.
func NewRegistry(devices []catalog.Device, allowed []string, deps Deps, logger *zap.Logger) *Registry {
	r := &Registry{
		boxes:  make(map[string]*Box),
		logger: logger.Named("registry"),
	}

	allow := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		allow[p] = true
	}

	for _, d := range devices {
		if !allow[d.PlatformType] {
			r.logger.Debug("Skipping device",
				zap.String("device_id", d.DeviceID),
				zap.String("platform_type", d.PlatformType))
			continue
		}
		if _, dup := r.boxes[d.DeviceID]; dup {
			continue
		}
		r.boxes[d.DeviceID] = New(d.DeviceID, d.FriendlyName, deps, logger)
		r.order = append(r.order, d.DeviceID)
	}

	r.logger.Info("Registry populated", zap.Int("boxes", len(r.order)))
	return r
}

// RegisterAll runs Register on every box
func (r *Registry) RegisterAll() error {
	for _, id := range r.order {
		if err := r.boxes[id].Register(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a box by device id
func (r *Registry) Get(id string) (*Box, error) {
	b, ok := r.boxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBox, id)
	}
	return b, nil
}

// All returns the boxes in device listing order
func (r *Registry) All() []*Box {
	out := make([]*Box, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.boxes[id])
	}
	return out
}

// SetOnChange installs a change callback on every box; fn receives the box
func (r *Registry) SetOnChange(fn func(*Box)) {
	for _, b := range r.boxes {
		b.SetOnChange(func() { fn(b) })
	}
}

// Dispatch routes an inbound message to its box. Messages that cannot be
// decoded or that name an unknown device are logged and dropped.
func (r *Registry) Dispatch(ctx context.Context, msg pubsub.Message) {
	var in inbound
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		metrics.MessagesReceived.WithLabelValues("malformed").Inc()
		r.logger.Debug("Dropping undecodable message", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}

	id, err := in.deviceID()
	if err != nil {
		metrics.MessagesReceived.WithLabelValues("ignored").Inc()
		return
	}

	b, ok := r.boxes[id]
	if !ok {
		metrics.MessagesReceived.WithLabelValues("unknown_device").Inc()
		r.logger.Debug("Message for unknown device", zap.String("device_id", id), zap.String("topic", msg.Topic))
		return
	}

	if in.DeviceType == DeviceTypeBox {
		state := State(in.State)
		if !state.Valid() || state == StateUnknown {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
			r.logger.Debug("Dropping connectivity message with unexpected state",
				zap.String("device_id", id),
				zap.String("state", in.State))
		} else {
			metrics.MessagesReceived.WithLabelValues("connectivity").Inc()
			b.HandleConnectivity(state)
		}
	}

	if in.hasStatus() {
		var status nowplaying.Status
		if err := json.Unmarshal(in.Status, &status); err != nil {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
			r.logger.Debug("Dropping undecodable status", zap.String("device_id", id), zap.Error(err))
			return
		}
		if err := b.HandleStatus(ctx, &status); err != nil {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
			r.logger.Debug("Dropping status",
				zap.String("device_id", id),
				zap.ByteString("status", in.Status),
				zap.Error(err))
			return
		}
		metrics.MessagesReceived.WithLabelValues("status").Inc()
	}
}
