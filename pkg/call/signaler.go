package call

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	signalWriteWait = 10 * time.Second
	signalBuffer    = 64
)

// inbound is a message from the relay.
type inbound struct {
	Event string          `json:"event"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WSSignaler speaks the relay protocol served at /ws.
type WSSignaler struct {
	conn   *gorillawebsocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	events  chan SignalEvent
	welcome chan string
	id      string
	done    chan struct{}
	once    sync.Once
}

// DialSignaler connects to the relay at wsURL, authenticating with token
// when it is not empty, and waits for the welcome message.
func DialSignaler(ctx context.Context, wsURL, token string, logger zerolog.Logger) (*WSSignaler, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := gorillawebsocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	s := &WSSignaler{
		conn:    conn,
		logger:  logger,
		events:  make(chan SignalEvent, signalBuffer),
		welcome: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	select {
	case id := <-s.welcome:
		s.id = id
		return s, nil
	case <-s.done:
		_ = conn.Close()
		return nil, fmt.Errorf("relay closed before welcome")
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// ID is the connection id the relay assigned.
func (s *WSSignaler) ID() string { return s.id }

func (s *WSSignaler) Events() <-chan SignalEvent { return s.events }

func (s *WSSignaler) Join(ctx context.Context, room string) error {
	return s.write(ctx, outbound{Event: "join-room", Data: map[string]string{"roomId": room}})
}

func (s *WSSignaler) Leave(ctx context.Context, room string) error {
	return s.write(ctx, outbound{Event: "leave-room", Data: map[string]string{"roomId": room}})
}

func (s *WSSignaler) Send(ctx context.Context, room string, payload json.RawMessage) error {
	return s.write(ctx, outbound{Event: "signal", Data: struct {
		RoomID string          `json:"roomId"`
		Data   json.RawMessage `json:"data"`
	}{room, payload}})
}

// Subscribe asks for notification topics on the same connection.
func (s *WSSignaler) Subscribe(ctx context.Context, topics ...string) error {
	return s.write(ctx, outbound{Event: "subscribe", Data: map[string][]string{"topics": topics}})
}

func (s *WSSignaler) write(ctx context.Context, msg outbound) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(signalWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Event, err)
	}
	return nil
}

func (s *WSSignaler) readLoop() {
	defer func() {
		s.emit(SignalEvent{Kind: Disconnected})
		close(s.events)
		s.shutdown()
	}()
	for {
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug().Err(err).Msg("relay read failed")
			}
			return
		}
		s.dispatch(msg)
	}
}

func (s *WSSignaler) dispatch(msg inbound) {
	switch msg.Event {
	case "welcome":
		var peer struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(msg.Data, &peer)
		select {
		case s.welcome <- peer.ID:
		default:
		}
	case "user-joined", "user-left":
		var peer struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg.Data, &peer); err != nil {
			return
		}
		kind := PeerJoined
		if msg.Event == "user-left" {
			kind = PeerLeft
		}
		s.emit(SignalEvent{Kind: kind, From: peer.ID})
	case "signal":
		var sig struct {
			From string          `json:"from"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			return
		}
		s.emit(SignalEvent{Kind: SignalPayload, From: sig.From, Data: sig.Data})
	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Event   string `json:"event"`
		}
		_ = json.Unmarshal(msg.Data, &e)
		s.emit(SignalEvent{Kind: RelayError, Code: e.Code, Message: e.Message, Event: e.Event})
	default:
		s.emit(SignalEvent{Kind: Notification, Name: msg.Event, Data: msg.Data})
	}
}

// emit delivers ev in arrival order, giving up once the signaler is closed.
func (s *WSSignaler) emit(ev SignalEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *WSSignaler) shutdown() {
	s.once.Do(func() { close(s.done) })
}

// Close sends a close frame and drops the connection.
func (s *WSSignaler) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(gorillawebsocket.CloseMessage,
		gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.shutdown()
	return s.conn.Close()
}
