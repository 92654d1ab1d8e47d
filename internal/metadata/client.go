// Package metadata resolves listing and media-group ids to display metadata and
// lists the household's network DVR recordings.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ziggonext/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when a lookup answers with anything but success
var ErrNotFound = errors.New("not found")

// APIGetter performs authenticated API reads (implemented by session.Provider)
type APIGetter interface {
	Get(ctx context.Context, url string, out interface{}) error
}

// Client performs listing/media-group point reads and recording listings
type Client struct {
	baseURL string
	http    *http.Client
	api     APIGetter
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a metadata client. Lookups are paced to ratePerSecond.
func NewClient(baseURL string, api APIGetter, ratePerSecond float64, logger *zap.Logger) *Client {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger.Named("metadata"),
	}
}

// GetListing looks up a listing by event or recording id
func (c *Client) GetListing(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	if err := c.lookup(ctx, "listing", "/listings/"+url.PathEscape(id), &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetMediaGroup looks up an on-demand title by its id
func (c *Client) GetMediaGroup(ctx context.Context, id string) (*MediaGroup, error) {
	var group MediaGroup
	if err := c.lookup(ctx, "mediagroup", "/mediagroups/"+url.PathEscape(id), &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) lookup(ctx context.Context, kind, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MetadataLookups.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("%s lookup failed: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		metrics.MetadataLookups.WithLabelValues(kind, "miss").Inc()
		c.logger.Debug("Lookup miss",
			zap.String("kind", kind),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: %w", kind, path, ErrNotFound)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.MetadataLookups.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	metrics.MetadataLookups.WithLabelValues(kind, "hit").Inc()
	return nil
}

// Recordings lists the household's network DVR recordings. Seasons and shows
// are returned as summaries without children.
func (c *Client) Recordings(ctx context.Context) ([]RecordingItem, error) {
	var resp recordingsResponse
	if err := c.api.Get(ctx, c.baseURL+"/networkdvrrecordings", &resp); err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	items := make([]RecordingItem, 0, len(resp.Recordings))
	for _, r := range resp.Recordings {
		switch r.Type {
		case "single":
			rec := r.single()
			items = append(items, RecordingItem{Type: ItemRecording, Recording: &rec})
		case "season":
			items = append(items, RecordingItem{Type: ItemShow, Show: summary(r, r.ParentMediaGroupID)})
		case "show":
			items = append(items, RecordingItem{Type: ItemShow, Show: summary(r, r.MediaGroupID)})
		default:
			c.logger.Debug("Skipping recording of unknown type", zap.String("type", r.Type))
		}
	}
	return items, nil
}

func summary(r rawRecording, mediaGroupID string) *RecordingShow {
	return &RecordingShow{
		MediaGroupID: mediaGroupID,
		Title:        r.Title,
		ImageURL:     r.image(),
		EpisodeCount: r.NumberOfEpisodes,
	}
}

// ShowRecordings returns one show with its episodes ordered by start time
func (c *Client) ShowRecordings(ctx context.Context, mediaGroupID string) (*RecordingShow, error) {
	u := fmt.Sprintf("%s/networkdvrrecordings?byMediaGroupIdForShow=%s&sort=startTime%%7CASC",
		c.baseURL, url.QueryEscape(mediaGroupID))

	var resp recordingsResponse
	if err := c.api.Get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("failed to list show recordings: %w", err)
	}
	if len(resp.Recordings) == 0 {
		return nil, fmt.Errorf("show %s: %w", mediaGroupID, ErrNotFound)
	}

	first := resp.Recordings[0]
	show := &RecordingShow{
		MediaGroupID: mediaGroupID,
		Title:        first.ShowTitle,
		ImageURL:     first.image(),
		EpisodeCount: first.NumberOfEpisodes,
		Children:     make([]Recording, 0, len(resp.Recordings)),
	}
	for _, r := range resp.Recordings {
		show.Children = append(show.Children, r.single())
	}
	return show, nil
}
