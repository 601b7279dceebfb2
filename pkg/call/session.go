package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotIdle = errors.New("call already started")
	ErrClosed  = errors.New("call is closed")
)

// completionTimeout bounds the background appointment completion.
const completionTimeout = 15 * time.Second

type Config struct {
	RoomID        string
	AppointmentID string
	Media         MediaSource
	Signaler      Signaler
	NewPeer       PeerFactory
	// Completer is optional; without it ending a call completes nothing.
	Completer Completer
	Logger    zerolog.Logger
	// OnStateChange observes every transition. It is called with the
	// session lock held and must not call back into the session.
	OnStateChange func(from, to State)
}

// Session is one side of a call.
type Session struct {
	cfg Config

	mu            sync.Mutex
	state         State
	cause         error
	stream        Stream
	peer          Peer
	initiator     bool
	remote        string
	inRoom        bool
	everConnected bool

	connStates chan ConnState
	done       chan struct{}
}

func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.RoomID == "":
		return nil, errors.New("call: room id is required")
	case cfg.Media == nil, cfg.Signaler == nil, cfg.NewPeer == nil:
		return nil, errors.New("call: media, signaler and peer factory are required")
	}
	return &Session{
		cfg:        cfg,
		state:      StateIdle,
		connStates: make(chan ConnState, 16),
		done:       make(chan struct{}),
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns what moved the session to the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Initiator reports whether this side created the offer.
func (s *Session) Initiator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiator
}

// Done is closed once the session reaches closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setLocked(to State) bool {
	from := s.state
	if !canMove(from, to) {
		return false
	}
	s.state = to
	s.cfg.Logger.Debug().Str("room", s.cfg.RoomID).Str("from", string(from)).Str("to", string(to)).Msg("call state")
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
	return true
}

// Start acquires local media and joins the room. Events from the relay are
// processed in the background until the session closes.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.setLocked(StateRequestingMedia)
	s.mu.Unlock()

	stream, err := s.cfg.Media.Acquire(ctx)
	if err != nil {
		err = fmt.Errorf("acquire media: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateRequestingMedia {
		s.mu.Unlock()
		stream.Stop()
		return ErrClosed
	}
	s.stream = stream
	s.mu.Unlock()

	if err := s.cfg.Signaler.Join(ctx, s.cfg.RoomID); err != nil {
		err = fmt.Errorf("join room: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	moved := s.setLocked(StateWaitingForPeer)
	s.inRoom = moved
	s.mu.Unlock()
	if !moved {
		_ = s.cfg.Signaler.Leave(ctx, s.cfg.RoomID)
		return ErrClosed
	}

	go s.run()
	return nil
}

func (s *Session) run() {
	events := s.cfg.Signaler.Events()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				s.fail(errors.New("signaling channel closed"))
				return
			}
			s.handleSignal(ev)
		case cs := <-s.connStates:
			s.handleConnState(cs)
		}
	}
}

func (s *Session) handleSignal(ev SignalEvent) {
	ctx := context.Background()
	switch ev.Kind {
	case PeerJoined:
		s.mu.Lock()
		if s.state != StateWaitingForPeer || s.peer != nil {
			s.mu.Unlock()
			return
		}
		s.initiator = true
		s.remote = ev.From
		peer, err := s.newPeerLocked()
		if err != nil {
			s.mu.Unlock()
			s.fail(err)
			return
		}
		s.setLocked(StateNegotiating)
		s.mu.Unlock()

		offer, err := peer.CreateOffer(ctx)
		if err != nil {
			s.fail(fmt.Errorf("create offer: %w", err))
			return
		}
		s.send(offer)

	case SignalPayload:
		s.mu.Lock()
		if s.remote != "" && ev.From != s.remote {
			s.mu.Unlock()
			s.cfg.Logger.Debug().Str("from", ev.From).Msg("signal from unknown sender ignored")
			return
		}
		peer := s.peer
		if peer == nil {
			if s.state != StateWaitingForPeer {
				s.mu.Unlock()
				return
			}
			s.remote = ev.From
			var err error
			if peer, err = s.newPeerLocked(); err != nil {
				s.mu.Unlock()
				s.fail(err)
				return
			}
			s.setLocked(StateNegotiating)
		}
		s.mu.Unlock()

		reply, err := peer.HandleSignal(ctx, ev.Data)
		if err != nil {
			s.fail(fmt.Errorf("apply signal: %w", err))
			return
		}
		if len(reply) > 0 {
			s.send(reply)
		}

	case PeerLeft:
		s.mu.Lock()
		ours := s.remote == "" || ev.From == s.remote
		s.mu.Unlock()
		if ours {
			s.End(ctx)
		}

	case RelayError:
		s.fail(fmt.Errorf("relay rejected %s: %s (%s)", ev.Event, ev.Message, ev.Code))

	case Disconnected:
		s.fail(errors.New("signaling relay disconnected"))
	}
}

func (s *Session) handleConnState(cs ConnState) {
	switch cs {
	case ConnConnected:
		s.mu.Lock()
		if s.setLocked(StateConnected) {
			s.everConnected = true
		}
		s.mu.Unlock()
	case ConnFailed:
		s.fail(errors.New("peer connection failed"))
	case ConnDisconnected, ConnClosed:
		s.End(context.Background())
	}
}

func (s *Session) newPeerLocked() (Peer, error) {
	peer, err := s.cfg.NewPeer(PeerConfig{
		Stream: s.stream,
		Emit:   s.send,
		OnConnState: func(cs ConnState) {
			select {
			case s.connStates <- cs:
			case <-s.done:
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer: %w", err)
	}
	s.peer = peer
	return peer, nil
}

func (s *Session) send(payload json.RawMessage) {
	if err := s.cfg.Signaler.Send(context.Background(), s.cfg.RoomID, payload); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("room", s.cfg.RoomID).Msg("signal send failed")
	}
}

// fail moves to the error state and releases media and the peer. The
// session stays in the room until End.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setLocked(StateError) {
		return
	}
	s.cause = err
	s.releaseLocked()
	s.cfg.Logger.Warn().Err(err).Str("room", s.cfg.RoomID).Msg("call failed")
}

func (s *Session) releaseLocked() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			s.cfg.Logger.Debug().Err(err).Msg("close peer")
		}
		s.peer = nil
	}
}

// End stops local tracks, closes the peer and leaves the room. If the call
// was ever connected the appointment is completed in the background; End
// never waits for that or reports its failure. Calling End again is a no-op.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	joined := s.inRoom
	s.inRoom = false
	s.releaseLocked()
	s.setLocked(StateClosed)
	complete := s.everConnected
	close(s.done)
	s.mu.Unlock()

	if joined {
		if err := s.cfg.Signaler.Leave(ctx, s.cfg.RoomID); err != nil {
			s.cfg.Logger.Debug().Err(err).Str("room", s.cfg.RoomID).Msg("leave room")
		}
	}
	if complete && s.cfg.Completer != nil && s.cfg.AppointmentID != "" {
		go s.complete()
	}
}

func (s *Session) complete() {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()
	if err := s.cfg.Completer.Complete(ctx, s.cfg.AppointmentID); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("appointment_id", s.cfg.AppointmentID).Msg("appointment completion failed")
		return
	}
	s.cfg.Logger.Info().Str("appointment_id", s.cfg.AppointmentID).Msg("appointment completed after call")
}
