// Package call drives one side of a 1:1 video consultation: it acquires
// local media, joins the signaling room, negotiates the peer connection
// and tears everything down when the call ends.
package call

import "fmt"

type State string

const (
	StateIdle            State = "idle"
	StateRequestingMedia State = "requesting-media"
	StateWaitingForPeer  State = "waiting-for-peer"
	StateNegotiating     State = "negotiating"
	StateConnected       State = "connected"
	StateClosed          State = "closed"
	StateError           State = "error"
)

// forward lists the states each state may advance to. Error is reachable
// from every state except closed, and closed from every state.
var forward = map[State][]State{
	StateIdle:            {StateRequestingMedia},
	StateRequestingMedia: {StateWaitingForPeer},
	StateWaitingForPeer:  {StateNegotiating},
	StateNegotiating:     {StateConnected},
}

func canMove(from, to State) bool {
	switch {
	case from == StateClosed:
		return false
	case to == StateClosed:
		return true
	case to == StateError:
		return from != StateError
	}
	for _, s := range forward[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ConnState is what the peer connection reports about its transport.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (c ConnState) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(c))
}
