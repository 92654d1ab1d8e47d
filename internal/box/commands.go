package box

import (
	"ziggonext/internal/nowplaying"

	"go.uber.org/zap"
)

// SendKey emulates a remote control key press
func (b *Box) SendKey(key string) error {
	b.logger.Debug("Sending key", zap.String("key", key))
	return b.command(TypeKeyEvent, keyMessage{
		ID:     b.newID(),
		Type:   TypeKeyEvent,
		Source: b.deps.ClientID,
		Status: keyStatus{W3CKey: key, EventType: "keyDownUp"},
	})
}

// SetChannel tunes the box to a channel by service id
func (b *Box) SetChannel(serviceID string) error {
	speed := 1
	return b.command(TypePushToTV, b.push(pushStatus{
		SourceType: "linear",
		Source:     map[string]string{"channelId": serviceID},
		Speed:      &speed,
	}))
}

// PlayRecording starts a network recording from the beginning
func (b *Box) PlayRecording(recordingID string) error {
	return b.command(TypePushToTV, b.push(pushStatus{
		SourceType: "nDVR",
		Source:     map[string]string{"recordingId": recordingID},
	}))
}

func (b *Box) push(status pushStatus) pushMessage {
	return pushMessage{
		ID:   b.newID(),
		Type: TypePushToTV,
		Source: pushSource{
			ClientID:           b.deps.ClientID,
			FriendlyDeviceName: b.deps.ClientName,
		},
		Status: status,
	}
}

// guarded sends key when ok holds for the current state. It reports whether
// the key was sent.
func (b *Box) guarded(key string, ok func(State, bool) bool) (bool, error) {
	b.mu.Lock()
	allowed := ok(b.state, b.info.Paused)
	b.mu.Unlock()

	if !allowed {
		b.logger.Debug("Command not applicable", zap.String("key", key))
		return false, nil
	}
	return true, b.SendKey(key)
}

func running(s State, _ bool) bool { return s == StateRunning }

// TurnOn powers up a box in standby
func (b *Box) TurnOn() (bool, error) {
	return b.guarded(KeyPower, func(s State, _ bool) bool { return s == StateStandby })
}

// TurnOff powers down a running box. The playback projection is cleared right
// away since an off box stops reporting detail.
func (b *Box) TurnOff() (bool, error) {
	b.mu.Lock()
	if b.state != StateRunning {
		b.mu.Unlock()
		return false, nil
	}
	b.info = nowplaying.PlayingInfo{}
	b.mu.Unlock()

	return true, b.SendKey(KeyPower)
}

// Pause pauses playback. Repeated calls before the box reports back each send
// a play/pause key.
func (b *Box) Pause() (bool, error) {
	return b.guarded(KeyPlayPause, func(s State, paused bool) bool { return s == StateRunning && !paused })
}

// Play resumes paused playback
func (b *Box) Play() (bool, error) {
	return b.guarded(KeyPlayPause, func(s State, paused bool) bool { return s == StateRunning && paused })
}

// NextChannel zaps up
func (b *Box) NextChannel() (bool, error) { return b.guarded(KeyChannelUp, running) }

// PreviousChannel zaps down
func (b *Box) PreviousChannel() (bool, error) { return b.guarded(KeyChannelDown, running) }

// Rewind rewinds playback
func (b *Box) Rewind() (bool, error) { return b.guarded(KeyRewind, running) }

// FastForward fast-forwards playback
func (b *Box) FastForward() (bool, error) { return b.guarded(KeyFastForward, running) }

// Stop stops playback
func (b *Box) Stop() (bool, error) { return b.guarded(KeyStop, running) }

// Enter presses OK
func (b *Box) Enter() (bool, error) { return b.guarded(KeyEnter, running) }

// Record starts recording the current program
func (b *Box) Record() (bool, error) { return b.guarded(KeyRecord, running) }
