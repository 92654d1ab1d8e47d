package nowplaying

// SourceType classifies what a box is playing
type SourceType string

// Source types of a PlayingInfo
const (
	SourceChannel SourceType = "CHANNEL"
	SourceReplay  SourceType = "REPLAY"
	SourceDVR     SourceType = "DVR"
	SourceBuffer  SourceType = "BUFFER"
	SourceVOD     SourceType = "VOD"
	SourceApp     SourceType = "APP"
	SourceUnknown SourceType = "UNKNOWN"
)

// PlayingInfo is what a box is showing right now. It is replaced wholesale on
// every update; the zero value is the empty default of a standby box.
type PlayingInfo struct {
	SourceType   SourceType `json:"sourceType,omitempty"`
	ChannelID    string     `json:"channelId,omitempty"`
	ChannelTitle string     `json:"channelTitle,omitempty"`
	Title        string     `json:"title,omitempty"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	Paused       bool       `json:"paused"`
}

// IsEmpty reports whether the info is the empty default
func (p PlayingInfo) IsEmpty() bool {
	return p == PlayingInfo{}
}

// UI modes reported in uiStatus
const (
	UIModeMain = "mainUI"
	UIModeApps = "apps"
)

// Player source type tags reported in playerState.sourceType
const (
	TagLinear       = "linear"
	TagReplay       = "replay"
	TagDVR          = "nDVR"
	TagReviewBuffer = "reviewbuffer"
	TagVOD          = "VOD"
)

// Status is the detailed status object a box pushes
type Status struct {
	UIStatus    string       `json:"uiStatus"`
	PlayerState *PlayerState `json:"playerState,omitempty"`
	AppsState   *AppsState   `json:"appsState,omitempty"`
}

// PlayerState describes playback under the main UI
type PlayerState struct {
	SourceType string       `json:"sourceType"`
	Source     PlayerSource `json:"source"`
	Speed      *float64     `json:"speed,omitempty"`
}

// PlayerSource carries the ids relevant to the source type
type PlayerSource struct {
	ChannelID   string `json:"channelId,omitempty"`
	EventID     string `json:"eventId,omitempty"`
	RecordingID string `json:"recordingId,omitempty"`
	TitleID     string `json:"titleId,omitempty"`
}

// AppsState describes the app in the foreground
type AppsState struct {
	AppName  string `json:"appName"`
	LogoPath string `json:"logoPath"`
	ID       string `json:"id,omitempty"`
}

func (p *PlayerState) paused() bool {
	return p.Speed != nil && *p.Speed == 0
}
