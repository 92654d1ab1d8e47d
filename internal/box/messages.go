package box

import (
	"encoding/json"
	"errors"
)

// Outbound message types
const (
	TypeGetUIStatus = "CPE.getUiStatus"
	TypeKeyEvent    = "CPE.KeyEvent"
	TypePushToTV    = "CPE.pushToTV"
)

var errNoSource = errors.New("message without device source")

// inbound is the envelope of every message a box pushes. Source is usually the
// sender's device id; commands echoed back by the wildcard subscription carry
// an object there instead.
type inbound struct {
	Source     json.RawMessage `json:"source"`
	State      string          `json:"state"`
	DeviceType string          `json:"deviceType"`
	Status     json.RawMessage `json:"status"`
}

func (m *inbound) deviceID() (string, error) {
	var id string
	if len(m.Source) == 0 || json.Unmarshal(m.Source, &id) != nil || id == "" {
		return "", errNoSource
	}
	return id, nil
}

func (m *inbound) hasStatus() bool {
	return len(m.Status) > 0 && string(m.Status) != "null"
}

type probeMessage struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

type keyMessage struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Status keyStatus `json:"status"`
}

type keyStatus struct {
	W3CKey    string `json:"w3cKey"`
	EventType string `json:"eventType"`
}

type pushSource struct {
	ClientID           string `json:"clientId"`
	FriendlyDeviceName string `json:"friendlyDeviceName"`
}

type pushMessage struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Source pushSource `json:"source"`
	Status pushStatus `json:"status"`
}

type pushStatus struct {
	SourceType       string            `json:"sourceType"`
	Source           map[string]string `json:"source"`
	RelativePosition int               `json:"relativePosition"`
	Speed            *int              `json:"speed,omitempty"`
}
