package metadata

import (
	"context"
	"testing"

	"ziggonext/internal/session"
	"ziggonext/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *testutil.MockAPIServer) {
	t.Helper()
	server := testutil.NewMockAPIServer("user", "pass", "HH-1")
	t.Cleanup(server.Close)
	provider := session.NewProvider(server.URL(), "user", "pass", zap.NewNop())
	return NewClient(server.URL(), provider, 100, zap.NewNop()), server
}

func TestGetListing(t *testing.T) {
	c, server := newTestClient(t)
	server.SetListing("evt-1", "lgi-nl-prod-master:NL_1", "The News", "https://img/news.jpg")

	listing, err := c.GetListing(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "lgi-nl-prod-master:NL_1", listing.StationID)
	assert.Equal(t, "The News", listing.Title())
	assert.Equal(t, "https://img/news.jpg", listing.Image())
}

func TestGetListing_Miss(t *testing.T) {
	c, _ := newTestClient(t)

	listing, err := c.GetListing(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, listing)
	assert.Equal(t, "", listing.Title())
	assert.Equal(t, "", listing.Image())
}

func TestGetMediaGroup(t *testing.T) {
	c, server := newTestClient(t)
	server.SetMediaGroup("crid:~~2F~~2Fmovie", "A Movie", "https://img/movie.jpg")

	group, err := c.GetMediaGroup(context.Background(), "crid:~~2F~~2Fmovie")
	require.NoError(t, err)
	assert.Equal(t, "A Movie", group.Title)
	assert.Equal(t, "https://img/movie.jpg", group.Image())

	_, err = c.GetMediaGroup(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordings(t *testing.T) {
	c, server := newTestClient(t)
	server.AddRecording(map[string]interface{}{
		"type":          "single",
		"recordingId":   "rec-1",
		"title":         "Film",
		"images":        []map[string]string{{"url": "https://img/film.jpg"}},
		"seasonNumber":  2,
		"episodeNumber": 5,
	})
	server.AddRecording(map[string]interface{}{
		"type":               "season",
		"parentMediaGroupId": "mg-season",
		"title":              "Series S1",
		"numberOfEpisodes":   8,
		"images":             []map[string]string{{"url": "https://img/s1.jpg"}},
	})
	server.AddRecording(map[string]interface{}{
		"type":             "show",
		"mediaGroupId":     "mg-show",
		"title":            "Talk Show",
		"numberOfEpisodes": 3,
		"images":           []map[string]string{{"url": "https://img/show.jpg"}},
	})
	server.AddRecording(map[string]interface{}{"type": "planned"})

	items, err := c.Recordings(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ItemRecording, items[0].Type)
	assert.Equal(t, "rec-1", items[0].Recording.ID)
	require.NotNil(t, items[0].Recording.Season)
	assert.Equal(t, 2, *items[0].Recording.Season)
	assert.Equal(t, 5, *items[0].Recording.Episode)

	assert.Equal(t, ItemShow, items[1].Type)
	assert.Equal(t, "mg-season", items[1].Show.MediaGroupID)
	assert.Equal(t, 8, items[1].Show.EpisodeCount)

	assert.Equal(t, "mg-show", items[2].Show.MediaGroupID)
	assert.Equal(t, "https://img/show.jpg", items[2].Show.ImageURL)
}

func TestShowRecordings(t *testing.T) {
	c, server := newTestClient(t)
	server.SetShowRecordings("mg-show", []map[string]interface{}{
		{
			"recordingId":      "ep-1",
			"title":            "Pilot",
			"showTitle":        "Talk Show",
			"numberOfEpisodes": 2,
			"images":           []map[string]string{{"url": "https://img/ep1.jpg"}},
			"episodeNumber":    1,
		},
		{
			"recordingId": "ep-2",
			"title":       "Second",
			"images":      []map[string]string{{"url": "https://img/ep2.jpg"}},
		},
	})

	show, err := c.ShowRecordings(context.Background(), "mg-show")
	require.NoError(t, err)
	assert.Equal(t, "Talk Show", show.Title)
	assert.Equal(t, 2, show.EpisodeCount)
	require.Len(t, show.Children, 2)
	assert.Equal(t, "ep-1", show.Children[0].ID)
	assert.Equal(t, "ep-2", show.Children[1].ID)
	assert.Nil(t, show.Children[1].Episode)

	_, err = c.ShowRecordings(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
