// Package nowplaying derives a canonical PlayingInfo from the detailed status
// payloads a box pushes.
package nowplaying

import (
	"context"
	"errors"
	"strings"

	"ziggonext/internal/catalog"
	"ziggonext/internal/metadata"

	"go.uber.org/zap"
)

var (
	// ErrMalformedPayload is returned for status payloads without the nested
	// structure their UI mode needs
	ErrMalformedPayload = errors.New("malformed status payload")

	// ErrUnhandledMode is returned for UI modes that carry no playback projection
	ErrUnhandledMode = errors.New("unhandled ui mode")
)

// Title prefixes and placeholders
const (
	ReplayPrefix    = "ReplayTV: "
	RecordingPrefix = "Recording: "
	DelayedPrefix   = "Delayed: "
	VODChannelTitle = "VOD"
	UnknownTitle    = "Playing something..."
)

// stationPrefixes are the provider namespaces listings put in front of station ids
var stationPrefixes = []string{
	"lgi-nl-prod-master:",
	"lgi-be-prod-master:",
}

// Lookup resolves listing and media-group ids (implemented by metadata.Client)
type Lookup interface {
	GetListing(ctx context.Context, id string) (*metadata.Listing, error)
	GetMediaGroup(ctx context.Context, id string) (*metadata.MediaGroup, error)
}

// Channels is the read side of the channel catalog
type Channels interface {
	Channel(serviceID string) (catalog.Channel, bool)
}

// Resolver builds PlayingInfo projections
type Resolver struct {
	lookup   Lookup
	channels Channels
	logger   *zap.Logger
}

// NewResolver creates a resolver over a metadata lookup and the channel catalog
func NewResolver(lookup Lookup, channels Channels, logger *zap.Logger) *Resolver {
	return &Resolver{
		lookup:   lookup,
		channels: channels,
		logger:   logger.Named("nowplaying"),
	}
}

// Resolve classifies a status by UI mode and source type and builds the matching
// projection. Lookup misses degrade the projection instead of failing it.
func (r *Resolver) Resolve(ctx context.Context, status *Status) (PlayingInfo, error) {
	if status == nil || status.UIStatus == "" {
		return PlayingInfo{}, ErrMalformedPayload
	}

	switch status.UIStatus {
	case UIModeMain:
		if status.PlayerState == nil {
			return PlayingInfo{}, ErrMalformedPayload
		}
		return r.resolvePlayer(ctx, status.PlayerState), nil
	case UIModeApps:
		if status.AppsState == nil {
			return PlayingInfo{}, ErrMalformedPayload
		}
		return resolveApp(status.AppsState), nil
	default:
		return PlayingInfo{}, ErrUnhandledMode
	}
}

func (r *Resolver) resolvePlayer(ctx context.Context, ps *PlayerState) PlayingInfo {
	src := ps.Source

	switch ps.SourceType {
	case TagLinear:
		listing := r.listing(ctx, src.EventID)
		info := r.channelInfo(SourceChannel, src.ChannelID)
		info.Title = listing.Title()
		return info

	case TagReplay:
		listing := r.listing(ctx, src.EventID)
		info := r.channelInfo(SourceReplay, stationChannelID(listing))
		info.Title = ReplayPrefix + listing.Title()
		info.ImageURL = listing.Image()
		info.Paused = ps.paused()
		return info

	case TagDVR:
		listing := r.listing(ctx, src.RecordingID)
		info := r.channelInfo(SourceDVR, stationChannelID(listing))
		info.Title = RecordingPrefix + listing.Title()
		info.ImageURL = listing.Image()
		info.Paused = ps.paused()
		return info

	case TagReviewBuffer:
		listing := r.listing(ctx, src.EventID)
		info := r.channelInfo(SourceBuffer, src.ChannelID)
		info.Title = DelayedPrefix + listing.Title()
		info.Paused = ps.paused()
		return info

	case TagVOD:
		group := r.mediaGroup(ctx, src.TitleID)
		info := PlayingInfo{
			SourceType:   SourceVOD,
			ChannelTitle: VODChannelTitle,
			ImageURL:     group.Image(),
			Paused:       ps.paused(),
		}
		if group != nil {
			info.Title = group.Title
		}
		return info

	default:
		r.logger.Debug("Unrecognized source type", zap.String("source_type", ps.SourceType))
		return PlayingInfo{
			SourceType: SourceUnknown,
			Title:      UnknownTitle,
			Paused:     ps.paused(),
		}
	}
}

// channelInfo starts a projection for a catalog channel with its stream image.
// A channel missing from the catalog keeps its id but has no title or image.
func (r *Resolver) channelInfo(source SourceType, channelID string) PlayingInfo {
	info := PlayingInfo{SourceType: source, ChannelID: channelID}
	if channelID == "" {
		return info
	}
	ch, ok := r.channels.Channel(channelID)
	if !ok {
		r.logger.Debug("Channel not in catalog", zap.String("channel_id", channelID))
		return info
	}
	info.ChannelTitle = ch.Title
	info.ImageURL = ch.StreamImageURL
	return info
}

func (r *Resolver) listing(ctx context.Context, id string) *metadata.Listing {
	if id == "" {
		return nil
	}
	listing, err := r.lookup.GetListing(ctx, id)
	if err != nil {
		r.logger.Debug("Listing lookup failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	return listing
}

func (r *Resolver) mediaGroup(ctx context.Context, id string) *metadata.MediaGroup {
	if id == "" {
		return nil
	}
	group, err := r.lookup.GetMediaGroup(ctx, id)
	if err != nil {
		r.logger.Debug("Media group lookup failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	return group
}

func resolveApp(apps *AppsState) PlayingInfo {
	return PlayingInfo{
		SourceType:   SourceApp,
		ChannelTitle: apps.AppName,
		Title:        apps.AppName,
		ImageURL:     secureURL(apps.LogoPath),
	}
}

// secureURL turns a scheme-relative URL into an https one
func secureURL(path string) string {
	if strings.HasPrefix(path, "//") {
		return "https:" + path
	}
	return path
}

func stationChannelID(listing *metadata.Listing) string {
	if listing == nil {
		return ""
	}
	return NormalizeStationID(listing.StationID)
}

// NormalizeStationID strips a known provider namespace from a listing station id
func NormalizeStationID(stationID string) string {
	for _, prefix := range stationPrefixes {
		if rest, ok := strings.CutPrefix(stationID, prefix); ok {
			return rest
		}
	}
	return stationID
}
