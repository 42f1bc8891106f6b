package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sio "github.com/zishang520/socket.io/v2/socket"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// startSocketIOServer serves socket.io on an httptest listener. Every
// execution_event payload is delivered on the returned channel, and the
// connected channel fires once a client's listener is registered.
func startSocketIOServer(t *testing.T) (url string, received <-chan map[string]any, connected <-chan struct{}) {
	t.Helper()
	payloads := make(chan map[string]any, 16)
	ready := make(chan struct{}, 1)

	server := sio.NewServer(nil, nil)
	server.On("connection", func(clients ...any) {
		client := clients[0].(*sio.Socket)
		client.On(SocketIOEvent, func(args ...any) {
			if len(args) == 0 {
				return
			}
			if m, ok := args[0].(map[string]any); ok {
				payloads <- m
			}
		})
		ready <- struct{}{}
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server.ServeHandler(sio.DefaultServerOptions()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv.URL + "/socket.io/", payloads, ready
}

func TestSocketIOSink_ForwardsEvents(t *testing.T) {
	// --- Arrange ---
	url, received, connected := startSocketIOServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := DialSocketIO(ctx, url, SocketIOOptions{ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer sink.Close()

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("server never saw the connection")
	}
	sent := sampleEvents()[1:4]

	// --- Act ---
	handleAll(t, sink, sent)

	// --- Assert ---
	var got []map[string]any
	for len(got) < len(sent) {
		select {
		case p := <-received:
			got = append(got, p)
		case <-ctx.Done():
			t.Fatalf("received %d of %d events", len(got), len(sent))
		}
	}
	byKind := make(map[string]map[string]any, len(got))
	for _, p := range got {
		byKind[p["kind"].(string)] = p
	}
	for _, ev := range sent {
		p, ok := byKind[string(ev.Kind)]
		require.True(t, ok, "missing %s", ev.Kind)
		assert.Equal(t, "build", p["stage"])
		assert.Equal(t, "running", p["status"])
		assert.Equal(t, "run-1", p["runId"])
	}
	assert.Equal(t, "lint", byKind[string(model.EventJobStarted)]["job"])
	assert.Equal(t, "vet", byKind[string(model.EventStepStarted)]["step"])
}

func TestSocketIOSink_HandleAfterClose(t *testing.T) {
	url, _, _ := startSocketIOServer(t)
	sink, err := DialSocketIO(context.Background(), url, SocketIOOptions{ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	err = sink.Handle(context.Background(), sampleEvents()[0])

	assert.ErrorIs(t, err, ErrNotConnected)
}
