package box

import "ziggonext/internal/nowplaying"

// State is the connectivity state of a box
type State string

// Connectivity states
const (
	StateUnknown State = "UNKNOWN"
	StateStandby State = "ONLINE_STANDBY"
	StateRunning State = "ONLINE_RUNNING"
)

// Valid reports whether s is a known connectivity state
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStandby, StateRunning:
		return true
	}
	return false
}

// Remote control keys
const (
	KeyPower       = "Power"
	KeyEnter       = "Enter"
	KeyChannelUp   = "ChannelUp"
	KeyChannelDown = "ChannelDown"
	KeyRecord      = "MediaRecord"
	KeyPlayPause   = "MediaPlayPause"
	KeyStop        = "MediaStop"
	KeyRewind      = "MediaRewind"
	KeyFastForward = "MediaFastForward"
)

// Platform types of controllable boxes
const (
	PlatformEOS  = "EOS"
	PlatformEOS2 = "EOS2"
)

// DeviceTypeBox marks connectivity messages pushed by a box
const DeviceTypeBox = "STB"

// Snapshot is a point-in-time copy of a box's state
type Snapshot struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	State State                  `json:"state"`
	Info  nowplaying.PlayingInfo `json:"info"`
}
