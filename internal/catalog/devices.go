package catalog

import (
	"context"
	"fmt"
)

// Device is an entry of the household device listing
type Device struct {
	DeviceID     string
	PlatformType string
	FriendlyName string
}

// APIGetter performs authenticated API reads (implemented by session.Provider)
type APIGetter interface {
	Get(ctx context.Context, url string, out interface{}) error
}

type rawDevice struct {
	DeviceID     string `json:"deviceId"`
	PlatformType string `json:"platformType"`
	Settings     struct {
		DeviceFriendlyName string `json:"deviceFriendlyName"`
	} `json:"settings"`
}

// ListDevices reads the household's devices from the personalization service
func ListDevices(ctx context.Context, api APIGetter, url string) ([]Device, error) {
	var raw []rawDevice
	if err := api.Get(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, Device{
			DeviceID:     d.DeviceID,
			PlatformType: d.PlatformType,
			FriendlyName: d.Settings.DeviceFriendlyName,
		})
	}
	return devices, nil
}
