package call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/websocket"
)

func newRelay(t *testing.T) (*websocket.Hub, string, *auth.TokenIssuer) {
	t.Helper()
	hub := websocket.NewHub(websocket.HubConfig{RoomCapacity: 2, Logger: zerolog.Nop()})
	issuer := auth.NewTokenIssuer("relay-test-secret", time.Hour)
	e := echo.New()
	websocket.NewWebSocketHandler(hub, issuer, websocket.HandlerConfig{Logger: zerolog.Nop()}).RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", issuer
}

func dialSignaler(t *testing.T, url, token string) *WSSignaler {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := DialSignaler(ctx, url, token, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func next(t *testing.T, s *WSSignaler) SignalEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event from relay")
		return SignalEvent{}
	}
}

func TestWSSignaler_RoomRelay(t *testing.T) {
	hub, url, _ := newRelay(t)
	ctx := context.Background()
	a := dialSignaler(t, url, "")
	b := dialSignaler(t, url, "")
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, a.Join(ctx, "appt-1"))
	require.Eventually(t, func() bool { return hub.RoomCount("appt-1") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Join(ctx, "appt-1"))

	ev := next(t, a)
	assert.Equal(t, PeerJoined, ev.Kind)
	assert.Equal(t, b.ID(), ev.From)

	require.NoError(t, a.Send(ctx, "appt-1", json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	ev = next(t, b)
	assert.Equal(t, SignalPayload, ev.Kind)
	assert.Equal(t, a.ID(), ev.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(ev.Data))

	require.Eventually(t, func() bool { return hub.RoomCount("appt-1") == 2 }, 2*time.Second, 10*time.Millisecond)
	c := dialSignaler(t, url, "")
	require.NoError(t, c.Join(ctx, "appt-1"))
	ev = next(t, c)
	assert.Equal(t, RelayError, ev.Kind)
	assert.Equal(t, "ROOM_FULL", ev.Code)

	require.NoError(t, b.Leave(ctx, "appt-1"))
	ev = next(t, a)
	assert.Equal(t, PeerLeft, ev.Kind)
	assert.Equal(t, b.ID(), ev.From)
}

func TestWSSignaler_Notifications(t *testing.T) {
	hub, url, issuer := newRelay(t)
	token, err := issuer.Issue(auth.Identity{UserID: "patient-1", Role: auth.RolePatient})
	require.NoError(t, err)
	s := dialSignaler(t, url, token)

	topic := events.UserTopic("patient-1")
	require.NoError(t, s.Subscribe(context.Background(), topic))
	require.Eventually(t, func() bool { return hub.TopicCount(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.AppointmentUpdated, topic, map[string]string{"status": "confirmed"})))
	ev := next(t, s)
	assert.Equal(t, Notification, ev.Kind)
	assert.Equal(t, events.AppointmentUpdated, ev.Name)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(ev.Data))
}

func TestWSSignaler_CloseEmitsDisconnectToPeer(t *testing.T) {
	hub, url, _ := newRelay(t)
	ctx := context.Background()
	a := dialSignaler(t, url, "")
	b := dialSignaler(t, url, "")
	require.NoError(t, a.Join(ctx, "r"))
	require.Eventually(t, func() bool { return hub.RoomCount("r") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Join(ctx, "r"))
	next(t, a)

	require.NoError(t, b.Close())
	ev := next(t, a)
	assert.Equal(t, PeerLeft, ev.Kind)
	assert.ErrorIs(t, b.Send(ctx, "r", json.RawMessage(`"x"`)), ErrClosed)
}

func TestDialSignaler_BadToken(t *testing.T) {
	_, url, _ := newRelay(t)
	_, err := DialSignaler(context.Background(), url, "garbage", zerolog.Nop())
	assert.Error(t, err)
}

func TestHTTPCompleter(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth, gotMethod = r.URL.Path, r.Header.Get("Authorization"), r.Method
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_TRANSITION"}}`))
	}))
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL+"/", "tok", nil)
	require.NoError(t, c.Complete(context.Background(), "a1"))
	assert.Equal(t, "/api/appointments/a1/complete", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, http.MethodPut, gotMethod)

	status = http.StatusConflict
	err := c.Complete(context.Background(), "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
