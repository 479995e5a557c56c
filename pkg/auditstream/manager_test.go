package auditstream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/auditstream"
)

type fakeCatchupQuerier struct {
	events []auditstream.CatchupEvent
}

func (f *fakeCatchupQuerier) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]auditstream.CatchupEvent, error) {
	return f.events, nil
}

func newTestServer(t *testing.T, m *auditstream.ConnectionManager) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		m.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):]
	return srv, wsURL
}

func TestHandleConnectionSendsConnectionEstablished(t *testing.T) {
	m := auditstream.NewConnectionManager(nil, time.Second)
	_, wsURL := newTestServer(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]string
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "connection.established", msg["type"])
}

func TestBroadcastDeliversToSubscribedConnection(t *testing.T) {
	m := auditstream.NewConnectionManager(nil, time.Second)
	_, wsURL := newTestServer(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subscriber, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer subscriber.Close(websocket.StatusNormalClosure, "")
	_, _, err = subscriber.Read(ctx) // connection.established

	require.NoError(t, subscriber.Write(ctx, websocket.MessageText, []byte(`{"action":"subscribe","channel":"workflow:w1"}`)))
	_, _, err = subscriber.Read(ctx) // subscription.confirmed
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		if m.ActiveConnections() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Broadcast("workflow:w1", []byte(`{"type":"workflow.status","status":"completed"}`))

	_, data, err := subscriber.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "workflow.status")
}

func TestCatchupDeliversMissedEventsOnSubscribe(t *testing.T) {
	querier := &fakeCatchupQuerier{events: []auditstream.CatchupEvent{
		{ID: 1, Payload: map[string]any{"type": "workflow.status", "status": "completed"}},
	}}
	m := auditstream.NewConnectionManager(querier, time.Second)
	_, wsURL := newTestServer(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	_, _, err = conn.Read(ctx) // connection.established
	require.NoError(t, err)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"action":"subscribe","channel":"workflow:w1"}`)))
	_, _, err = conn.Read(ctx) // subscription.confirmed
	require.NoError(t, err)

	_, data, err := conn.Read(ctx) // catchup event
	require.NoError(t, err)
	assert.Contains(t, string(data), "workflow.status")
	assert.Contains(t, string(data), `"db_event_id":1`)
}
