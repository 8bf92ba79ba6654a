package runtime

import "fmt"

// State is a stream supervisor lifecycle state.
//
//	Disconnected -> Connecting -> Streaming -> Closing -> Disconnected
//
// Any state moves to Stopped once the context is canceled.
type State int

const (
	// StateDisconnected: no session; waiting to (re)connect.
	StateDisconnected State = iota
	// StateConnecting: opening the stream session.
	StateConnecting
	// StateStreaming: reading and dispatching events.
	StateStreaming
	// StateClosing: releasing the session after a fault or cancellation.
	StateClosing
	// StateStopped: Run has returned.
	StateStopped
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateStreaming:    "streaming",
	StateClosing:      "closing",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
