package controller

import (
	"context"
	"testing"
	"time"

	"ziggonext/internal/box"
	"ziggonext/internal/nowplaying"
	"ziggonext/internal/pubsub"
	"ziggonext/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scenario struct {
	t       *testing.T
	server  *testutil.MockAPIServer
	broker  *pubsub.MockBroker
	ctrl    *Controller
	changes chan box.Snapshot
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	server := testutil.NewMockAPIServer("user", "pass", "HH-1")
	t.Cleanup(server.Close)
	server.AddDevice("box-1", "EOS", "Living room")
	server.AddDevice("phone-1", "IOS", "Phone")
	server.AddChannel("NL_1", "NPO 1", 1, "https://img/npo1-stream.jpg", "https://img/npo1-logo.png")
	server.AddChannel("NL_2", "NPO 2", 2, "https://img/npo2-stream.jpg", "https://img/npo2-logo.png")
	server.SetListing("evt-1", "lgi-nl-prod-master:NL_2", "Late Night", "https://img/late.jpg")
	server.SetMediaGroup("title-1", "Rented Movie", "https://img/movie.jpg")

	fb := pubsub.NewMockBroker()
	ctrl := New(testConfig(server), zap.NewNop(), WithBroker(fb), WithClientID("client-1"))

	s := &scenario{
		t:       t,
		server:  server,
		broker:  fb,
		ctrl:    ctrl,
		changes: make(chan box.Snapshot, 16),
	}
	ctrl.OnChange(func(snap box.Snapshot) { s.changes <- snap })

	require.NoError(t, ctrl.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

// push delivers an inbound message and waits for the resulting change notification
func (s *scenario) push(payload string) box.Snapshot {
	s.t.Helper()
	s.broker.Deliver("HH-1/box-1/status", []byte(payload))
	select {
	case snap := <-s.changes:
		return snap
	case <-time.After(2 * time.Second):
		s.t.Fatal("no change notification")
		return box.Snapshot{}
	}
}

func TestScenario_ConnectBuildsHousehold(t *testing.T) {
	s := newScenario(t)

	boxes, err := s.ctrl.Boxes()
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, box.Snapshot{ID: "box-1", Name: "Living room", State: box.StateUnknown}, boxes[0])

	// Two catalog channels plus the synthetic app tiles
	assert.Len(t, s.ctrl.Channels(), 4)

	assert.Contains(t, s.broker.GetSubscriptions(), "HH-1/box-1/status")
	published := s.broker.GetPublished()
	require.Len(t, published, 1)
	assert.Equal(t, "HH-1/box-1", published[0].Topic)
	assert.Equal(t, "CPE.getUiStatus", published[0].Decode()["type"])

	available, err := s.ctrl.IsAvailable("box-1")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestScenario_CatalogReloadKeepsVODProjection(t *testing.T) {
	s := newScenario(t)
	s.push(`{"source":"box-1","state":"ONLINE_RUNNING","deviceType":"STB"}`)

	snap := s.push(`{"source":"box-1","status":{"uiStatus":"mainUI",
		"playerState":{"sourceType":"VOD","speed":1,"source":{"titleId":"title-1"}}}}`)
	vod := nowplaying.PlayingInfo{
		SourceType:   nowplaying.SourceVOD,
		ChannelTitle: "VOD",
		Title:        "Rented Movie",
		ImageURL:     "https://img/movie.jpg",
	}
	require.Equal(t, vod, snap.Info)

	s.server.ClearChannels()
	s.server.AddChannel("NL_2", "NPO 2 HD", 2, "https://img/npo2hd-stream.jpg", "")
	require.NoError(t, s.ctrl.LoadChannels(context.Background()))
	assert.Len(t, s.ctrl.Channels(), 3)

	current, err := s.ctrl.Box("box-1")
	require.NoError(t, err)
	assert.Equal(t, vod, current.Info)

	// The next inbound update resolves against the new catalog
	snap = s.push(`{"source":"box-1","status":{"uiStatus":"mainUI",
		"playerState":{"sourceType":"replay","speed":0,"source":{"eventId":"evt-1"}}}}`)
	assert.Equal(t, nowplaying.PlayingInfo{
		SourceType:   nowplaying.SourceReplay,
		ChannelID:    "NL_2",
		ChannelTitle: "NPO 2 HD",
		Title:        "ReplayTV: Late Night",
		ImageURL:     "https://img/late.jpg",
		Paused:       true,
	}, snap.Info)
}

func TestScenario_CommandsAndStandby(t *testing.T) {
	s := newScenario(t)
	s.push(`{"source":"box-1","state":"ONLINE_RUNNING","deviceType":"STB"}`)
	s.push(`{"source":"box-1","status":{"uiStatus":"mainUI",
		"playerState":{"sourceType":"linear","speed":1,"source":{"channelId":"NL_1","eventId":"evt-1"}}}}`)
	s.broker.ClearPublished()

	sent, err := s.ctrl.Command("box-1", ActionPause)
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = s.ctrl.Command("box-1", ActionOn)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, s.broker.GetPublished(), 2)

	require.NoError(t, s.ctrl.SelectSource("box-1", "NPO 2"))
	push := s.broker.GetPublished()[2].Decode()
	assert.Equal(t, "CPE.pushToTV", push["type"])
	assert.Equal(t, map[string]interface{}{"channelId": "NL_2"}, push["status"].(map[string]interface{})["source"])

	assert.ErrorIs(t, s.ctrl.SelectSource("box-1", "Unknown TV"), ErrUnknownChannel)
	_, err = s.ctrl.Command("box-9", ActionPause)
	assert.ErrorIs(t, err, box.ErrUnknownBox)
	_, err = s.ctrl.Command("box-1", "reboot")
	assert.Error(t, err)

	sent, err = s.ctrl.Command("box-1", ActionOff)
	require.NoError(t, err)
	assert.True(t, sent)
	current, _ := s.ctrl.Box("box-1")
	assert.True(t, current.Info.IsEmpty())

	snap := s.push(`{"source":"box-1","state":"ONLINE_STANDBY","deviceType":"STB"}`)
	assert.Equal(t, box.StateStandby, snap.State)
	assert.True(t, snap.Info.IsEmpty())

	available, err := s.ctrl.IsAvailable("box-1")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestScenario_Recordings(t *testing.T) {
	s := newScenario(t)
	s.server.AddRecording(map[string]interface{}{
		"type":        "single",
		"recordingId": "rec-1",
		"title":       "Film",
		"images":      []map[string]string{{"url": "https://img/film.jpg"}},
	})

	items, err := s.ctrl.Recordings(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rec-1", items[0].Recording.ID)

	s.broker.ClearPublished()
	require.NoError(t, s.ctrl.PlayRecording("box-1", "rec-1"))
	status := s.broker.GetPublished()[0].Decode()["status"].(map[string]interface{})
	assert.Equal(t, "nDVR", status["sourceType"])
}
