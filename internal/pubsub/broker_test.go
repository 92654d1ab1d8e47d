package pubsub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startBroker runs an in-process MQTT broker on a free local port
func startBroker(t *testing.T) (*mqttserver.Server, string) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mqttserver.New(&mqttserver.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "test", Address: addr})))

	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return server, "tcp://" + addr
}

func connectToBroker(t *testing.T, url string, bufferSize int) *Channel {
	t.Helper()
	ch := NewChannel(Options{Broker: url, ClientID: "client-1", BufferSize: bufferSize}, &fakeCredentials{}, zap.NewNop())
	require.NoError(t, ch.Connect(context.Background()))
	t.Cleanup(ch.Disconnect)
	return ch
}

// collect reads messages until none arrive for quiet
func collect(ch *Channel, quiet time.Duration) []Message {
	var out []Message
	for {
		select {
		case msg := <-ch.Messages():
			out = append(out, msg)
		case <-time.After(quiet):
			return out
		}
	}
}

func countTopic(msgs []Message, topic string) int {
	n := 0
	for _, m := range msgs {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

func TestChannel_BrokerDeliversEachMessageOnce(t *testing.T) {
	server, url := startBroker(t)
	ch := connectToBroker(t, url, 16)

	// Matches "#", "HH-1/+/status" and the device subscription
	require.NoError(t, ch.Subscribe("HH-1/box-1/status"))
	require.NoError(t, server.Publish("HH-1/box-1/status",
		[]byte(`{"source":"box-1","state":"ONLINE_RUNNING","deviceType":"STB"}`), false, 0))

	msgs := collect(ch, 500*time.Millisecond)
	assert.Equal(t, 1, countTopic(msgs, "HH-1/box-1/status"))
	// The presence announce comes back through the wildcard once as well
	assert.Equal(t, 1, countTopic(msgs, "HH-1/client-1/status"))
}

func TestChannel_BrokerSubscribeWhileConsumerIsBehind(t *testing.T) {
	server, url := startBroker(t)
	ch := connectToBroker(t, url, 1)

	const backlog = 50
	for i := 0; i < backlog; i++ {
		require.NoError(t, server.Publish("HH-1/box-9/status", []byte(fmt.Sprintf(`{"n":%d}`, i)), false, 0))
	}

	start := time.Now()
	require.NoError(t, ch.Subscribe("HH-1/box-2/status"))
	assert.Less(t, time.Since(start), 5*time.Second)

	msgs := collect(ch, 500*time.Millisecond)
	var backlogged []Message
	for _, m := range msgs {
		if m.Topic == "HH-1/box-9/status" {
			backlogged = append(backlogged, m)
		}
	}
	require.Len(t, backlogged, backlog)
	for i, m := range backlogged {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(m.Payload))
	}
}
