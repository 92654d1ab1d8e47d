package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ziggonext/internal/api"
	"ziggonext/internal/box"
	"ziggonext/internal/config"
	"ziggonext/internal/controller"
	"ziggonext/internal/pubsub"
	"ziggonext/pkg/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const householdID = "HH-1"

// TestEnv runs a connected controller against the mock web API and an
// in-memory broker, with the HTTP API served on a test server.
type TestEnv struct {
	t      *testing.T
	API    *testutil.MockAPIServer
	Broker *pubsub.MockBroker
	Ctrl   *controller.Controller
	Server *api.Server
	HTTP   *httptest.Server

	runErr chan error
	cancel context.CancelFunc
}

// NewTestEnv seeds the mock API with a household of one EOS box, two channels
// and one program listing, connects the controller and starts its dispatch loop.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	logger := zap.NewNop()

	mock := testutil.NewMockAPIServer("user", "pass", householdID)
	mock.AddDevice("box-1", box.PlatformEOS, "Living room")
	mock.AddChannel("NL_1", "NPO 1", 1, "https://img/npo1-stream.jpg", "https://img/npo1-logo.png")
	mock.AddChannel("NL_2", "NPO 2", 2, "https://img/npo2-stream.jpg", "https://img/npo2-logo.png")
	mock.SetListing("evt-1", "lgi-nl-prod-master:NL_1", "Journaal", "https://img/journaal.jpg")

	cfg := &config.Config{
		Username:                 "user",
		Password:                 "pass",
		Country:                  "nl",
		PlatformTypes:            config.DefaultPlatformTypes,
		ChannelRefreshSchedule:   config.DefaultChannelRefreshSchedule,
		MetadataRateLimit:        100,
		ClientName:               config.DefaultClientName,
		APIBaseURL:               mock.URL(),
		PersonalizationURLFormat: mock.PersonalizationURLFormat(),
	}

	broker := pubsub.NewMockBroker()
	ctrl := controller.New(cfg, logger, controller.WithBroker(broker), controller.WithClientID("client-1"))
	server := api.NewServer(ctrl, logger, 0)

	require.NoError(t, ctrl.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnv{
		t:      t,
		API:    mock,
		Broker: broker,
		Ctrl:   ctrl,
		Server: server,
		HTTP:   httptest.NewServer(server.Handler()),
		runErr: make(chan error, 1),
		cancel: cancel,
	}
	go func() { env.runErr <- ctrl.Run(ctx) }()

	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup stops all components in the correct order
func (e *TestEnv) Cleanup() {
	e.cancel()
	e.HTTP.Close()
	e.Ctrl.Close()
	e.API.Close()
}

// Deliver pushes an inbound broker message for box-1
func (e *TestEnv) Deliver(payload string) {
	e.Broker.Deliver(householdID+"/box-1/status", []byte(payload))
}

// WaitRun waits for the dispatch loop to return
func (e *TestEnv) WaitRun() error {
	select {
	case err := <-e.runErr:
		return err
	case <-time.After(2 * time.Second):
		e.t.Fatal("dispatch loop did not return")
		return nil
	}
}

// Post sends a JSON body to the HTTP API
func (e *TestEnv) Post(path, body string) *http.Response {
	e.t.Helper()
	resp, err := http.Post(e.HTTP.URL+path, "application/json", strings.NewReader(body))
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// Get issues a GET against the HTTP API
func (e *TestEnv) Get(path string) *http.Response {
	e.t.Helper()
	resp, err := http.Get(e.HTTP.URL + path)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// Events opens a websocket subscription to box snapshots
func (e *TestEnv) Events() *websocket.Conn {
	e.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.HTTP.URL, "http")+"/api/events", nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { conn.Close() })
	require.Eventually(e.t, func() bool { return e.Server.Events().Subscribers() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}
