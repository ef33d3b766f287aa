// Package ws holds the connection state machine shared by the market data
// feed's goroutines.
package ws

import "sync/atomic"

// ConnState is a feed connection's lifecycle position.
type ConnState int32

const (
	// StateDisconnected means no connection exists.
	StateDisconnected ConnState = iota
	// StateConnecting means the first handshake is in flight.
	StateConnecting
	// StateConnected means traffic is flowing.
	StateConnected
	// StateReconnecting means the connection dropped and a retry is in flight.
	StateReconnecting
	// StateClosed means the feed was stopped and will not reconnect.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is an atomically accessed ConnState. The zero value is
// StateDisconnected.
type State struct {
	v atomic.Int32
}

// Load returns the current state.
func (s *State) Load() ConnState {
	return ConnState(s.v.Load())
}

// Store sets the state.
func (s *State) Store(state ConnState) {
	s.v.Store(int32(state))
}

// CompareAndSwap moves from old to new only if the state is still old.
func (s *State) CompareAndSwap(old, new ConnState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}
