package catalog

import (
	"context"
	"testing"

	"ziggonext/internal/session"
	"ziggonext/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListChannels_AppendsSyntheticEntries(t *testing.T) {
	server := testutil.NewMockAPIServer("user", "pass", "HH-1")
	defer server.Close()
	server.AddChannel("NL_000001_019401", "NPO 1", 1, "https://img/npo1-stream.jpg", "https://img/npo1-logo.png")
	server.AddChannel("NL_000002_019402", "NPO 2", 2, "https://img/npo2-stream.jpg", "https://img/npo2-logo.png")

	channels, err := NewChannelSource(server.URL(), zap.NewNop()).ListChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 4)

	assert.Equal(t, Channel{
		ServiceID:      "NL_000001_019401",
		Title:          "NPO 1",
		StreamImageURL: "https://img/npo1-stream.jpg",
		LogoImageURL:   "https://img/npo1-logo.png",
		ChannelNumber:  "1",
	}, channels[0])
	assert.Equal(t, "Netflix", channels[2].Title)
	assert.Equal(t, "151", channels[3].ChannelNumber)
}

func TestListChannels_EmptyListingStillHasSynthetic(t *testing.T) {
	server := testutil.NewMockAPIServer("user", "pass", "HH-1")
	defer server.Close()

	channels, err := NewChannelSource(server.URL(), zap.NewNop()).ListChannels(context.Background())
	require.NoError(t, err)
	assert.Len(t, channels, 2)
}

func TestCatalog_ReplaceAndLookup(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Channel("NL_1")
	assert.False(t, ok)

	c.Replace([]Channel{
		{ServiceID: "NL_10", Title: "Ten", ChannelNumber: "10"},
		{ServiceID: "NL_2", Title: "Two", ChannelNumber: "2"},
		{ServiceID: "NL_2b", Title: "Two", ChannelNumber: "12"},
	})

	ch, ok := c.Channel("NL_10")
	require.True(t, ok)
	assert.Equal(t, "Ten", ch.Title)
	assert.Equal(t, 3, c.Len())

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"NL_2", "NL_10", "NL_2b"},
		[]string{all[0].ServiceID, all[1].ServiceID, all[2].ServiceID})

	found, ok := c.FindByTitle("Two")
	require.True(t, ok)
	assert.Equal(t, "NL_2", found.ServiceID)

	_, ok = c.FindByTitle("Missing")
	assert.False(t, ok)

	// Replacing drops entries absent from the new set
	c.Replace([]Channel{{ServiceID: "NL_3", Title: "Three", ChannelNumber: "3"}})
	_, ok = c.Channel("NL_10")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestListDevices(t *testing.T) {
	server := testutil.NewMockAPIServer("user", "pass", "HH-1")
	defer server.Close()
	server.AddDevice("3C36E4-EOSSTB-001", "EOS", "Living room")
	server.AddDevice("phone-1", "IOS", "Phone")

	provider := session.NewProvider(server.URL(), "user", "pass", zap.NewNop())
	devices, err := ListDevices(context.Background(), provider, server.URL()+"/personalization/HH-1/devices")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, Device{DeviceID: "3C36E4-EOSSTB-001", PlatformType: "EOS", FriendlyName: "Living room"}, devices[0])
	assert.Equal(t, "IOS", devices[1].PlatformType)
}
