// Package catalog fetches the channel catalog and the household device listing.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"ziggonext/internal/metrics"

	"go.uber.org/zap"
)

// Channel is a catalog entry. Entries are immutable once loaded.
type Channel struct {
	ServiceID      string `json:"serviceId"`
	Title          string `json:"title"`
	StreamImageURL string `json:"streamImageUrl,omitempty"`
	LogoImageURL   string `json:"logoImageUrl,omitempty"`
	ChannelNumber  string `json:"channelNumber"`
}

// syntheticChannels are app tiles the box reports as channels but the catalog never lists
var syntheticChannels = []Channel{
	{ServiceID: "NL_000073_019506", Title: "Netflix", ChannelNumber: "150"},
	{ServiceID: "NL_000074_019507", Title: "Videoland", ChannelNumber: "151"},
}

// Catalog holds the current channel set. Reloads swap the whole set atomically;
// readers see either the old or the new set.
type Catalog struct {
	channels atomic.Pointer[map[string]Channel]
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	c := &Catalog{}
	empty := map[string]Channel{}
	c.channels.Store(&empty)
	return c
}

// Replace swaps in a new channel set
func (c *Catalog) Replace(channels []Channel) {
	m := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		m[ch.ServiceID] = ch
	}
	c.channels.Store(&m)
	metrics.ChannelCatalogSize.Set(float64(len(m)))
}

// Channel looks up a channel by service id
func (c *Catalog) Channel(serviceID string) (Channel, bool) {
	ch, ok := (*c.channels.Load())[serviceID]
	return ch, ok
}

// FindByTitle returns the first channel, in channel number order, with the given title
func (c *Catalog) FindByTitle(title string) (Channel, bool) {
	for _, ch := range c.All() {
		if ch.Title == title {
			return ch, true
		}
	}
	return Channel{}, false
}

// All returns the channels ordered by channel number
func (c *Catalog) All() []Channel {
	m := *c.channels.Load()
	out := make([]Channel, 0, len(m))
	for _, ch := range m {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, ei := strconv.Atoi(out[i].ChannelNumber)
		nj, ej := strconv.Atoi(out[j].ChannelNumber)
		if ei == nil && ej == nil && ni != nj {
			return ni < nj
		}
		if out[i].ChannelNumber != out[j].ChannelNumber {
			return out[i].ChannelNumber < out[j].ChannelNumber
		}
		return out[i].ServiceID < out[j].ServiceID
	})
	return out
}

// Len returns the number of channels
func (c *Catalog) Len() int {
	return len(*c.channels.Load())
}

type channelsResponse struct {
	Channels []struct {
		Title            string          `json:"title"`
		ChannelNumber    json.RawMessage `json:"channelNumber"`
		StationSchedules []struct {
			Station struct {
				ServiceID string `json:"serviceId"`
				Images    []struct {
					AssetType string `json:"assetType"`
					URL       string `json:"url"`
				} `json:"images"`
			} `json:"station"`
		} `json:"stationSchedules"`
	} `json:"channels"`
}

// ChannelSource fetches the channel listing from the public web API
type ChannelSource struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewChannelSource creates a channel source against the API root
func NewChannelSource(baseURL string, logger *zap.Logger) *ChannelSource {
	return &ChannelSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("catalog"),
	}
}

// ListChannels fetches all channels and appends the synthetic app-tile entries
func (s *ChannelSource) ListChannels(ctx context.Context) ([]Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/channels", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel listing returned %d", resp.StatusCode)
	}

	var cr channelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}

	channels := make([]Channel, 0, len(cr.Channels)+len(syntheticChannels))
	for _, raw := range cr.Channels {
		if len(raw.StationSchedules) == 0 {
			s.logger.Debug("Skipping channel without station", zap.String("title", raw.Title))
			continue
		}
		station := raw.StationSchedules[0].Station
		ch := Channel{
			ServiceID:     station.ServiceID,
			Title:         raw.Title,
			ChannelNumber: channelNumber(raw.ChannelNumber),
		}
		for _, img := range station.Images {
			switch img.AssetType {
			case "imageStream":
				ch.StreamImageURL = img.URL
			case "station-logo-small":
				ch.LogoImageURL = img.URL
			}
		}
		channels = append(channels, ch)
	}
	channels = append(channels, syntheticChannels...)

	s.logger.Debug("Fetched channels", zap.Int("count", len(channels)))
	return channels, nil
}

// channelNumber accepts both numeric and string channel numbers
func channelNumber(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
