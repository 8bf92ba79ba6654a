package runtime

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/growler/transport"
)

// SessionErrorKind classifies transport faults.
type SessionErrorKind int

const (
	// SessionErrorOpen: the session could not be opened (refused, auth, DNS).
	SessionErrorOpen SessionErrorKind = iota
	// SessionErrorRead: reading the event stream failed.
	SessionErrorRead
	// SessionErrorExit: the remote command exited or closed its output.
	SessionErrorExit
	// SessionErrorKeepalive: an idle keepalive went unanswered.
	SessionErrorKeepalive
	// SessionErrorFrame: the stream can no longer be framed (oversized record).
	SessionErrorFrame
)

var sessionErrorKindNames = [...]string{
	SessionErrorOpen:      "open",
	SessionErrorRead:      "read",
	SessionErrorExit:      "exit",
	SessionErrorKeepalive: "keepalive",
	SessionErrorFrame:     "frame",
}

func (k SessionErrorKind) String() string {
	if k >= 0 && int(k) < len(sessionErrorKindNames) {
		return sessionErrorKindNames[k]
	}
	return fmt.Sprintf("SessionErrorKind(%d)", int(k))
}

// SessionError is a transport fault. It ends the current session; the
// supervisor reconnects after its backoff.
type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s fault", e.Kind)
	}
	return fmt.Sprintf("session %s fault: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsTransportFault returns true if err is a session-level fault.
func IsTransportFault(err error) bool {
	var sessErr *SessionError
	return errors.As(err, &sessErr)
}

// IsSessionErrorKind returns true if err is a SessionError of kind k.
func IsSessionErrorKind(err error, k SessionErrorKind) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == k
	}
	return false
}

// IsAuthFault returns true if err is a session fault caused by rejected
// credentials.
func IsAuthFault(err error) bool {
	return IsTransportFault(err) && transport.IsAuthError(err)
}
