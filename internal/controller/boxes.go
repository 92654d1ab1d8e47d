package controller

import (
	"fmt"

	"ziggonext/internal/box"
)

// Box actions accepted by Command
const (
	ActionOn          = "on"
	ActionOff         = "off"
	ActionPlay        = "play"
	ActionPause       = "pause"
	ActionNext        = "next"
	ActionPrevious    = "previous"
	ActionRewind      = "rewind"
	ActionFastForward = "fastforward"
	ActionStop        = "stop"
	ActionEnter       = "enter"
	ActionRecord      = "record"
)

var actions = map[string]func(*box.Box) (bool, error){
	ActionOn:          (*box.Box).TurnOn,
	ActionOff:         (*box.Box).TurnOff,
	ActionPlay:        (*box.Box).Play,
	ActionPause:       (*box.Box).Pause,
	ActionNext:        (*box.Box).NextChannel,
	ActionPrevious:    (*box.Box).PreviousChannel,
	ActionRewind:      (*box.Box).Rewind,
	ActionFastForward: (*box.Box).FastForward,
	ActionStop:        (*box.Box).Stop,
	ActionEnter:       (*box.Box).Enter,
	ActionRecord:      (*box.Box).Record,
}

// IsAction reports whether name is a known box action
func IsAction(name string) bool {
	_, ok := actions[name]
	return ok
}

// Boxes returns snapshots of all boxes
func (c *Controller) Boxes() ([]box.Snapshot, error) {
	registry, err := c.currentRegistry()
	if err != nil {
		return nil, err
	}
	boxes := registry.All()
	out := make([]box.Snapshot, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, b.Snapshot())
	}
	return out, nil
}

// Box returns a snapshot of one box
func (c *Controller) Box(id string) (box.Snapshot, error) {
	b, err := c.box(id)
	if err != nil {
		return box.Snapshot{}, err
	}
	return b.Snapshot(), nil
}

func (c *Controller) box(id string) (*box.Box, error) {
	registry, err := c.currentRegistry()
	if err != nil {
		return nil, err
	}
	return registry.Get(id)
}

// IsAvailable reports whether a box has reported a connectivity state
func (c *Controller) IsAvailable(id string) (bool, error) {
	b, err := c.box(id)
	if err != nil {
		return false, err
	}
	return b.Available(), nil
}

// Command runs a guarded box action. It reports whether a command was sent;
// actions whose guard is not met are no-ops.
func (c *Controller) Command(id, action string) (bool, error) {
	fn, ok := actions[action]
	if !ok {
		return false, fmt.Errorf("unknown action %q", action)
	}
	b, err := c.box(id)
	if err != nil {
		return false, err
	}
	return fn(b)
}

// SetChannel tunes a box to a channel by service id
func (c *Controller) SetChannel(id, serviceID string) error {
	b, err := c.box(id)
	if err != nil {
		return err
	}
	return b.SetChannel(serviceID)
}

// SelectSource tunes a box to a channel by its catalog title
func (c *Controller) SelectSource(id, title string) error {
	ch, ok := c.channels.FindByTitle(title)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, title)
	}
	return c.SetChannel(id, ch.ServiceID)
}

// PlayRecording starts a network recording on a box
func (c *Controller) PlayRecording(id, recordingID string) error {
	b, err := c.box(id)
	if err != nil {
		return err
	}
	return b.PlayRecording(recordingID)
}
