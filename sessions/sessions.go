package sessions

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned by Lookup for ids that were never
	// registered or whose stream has already closed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Insert when the id is already live.
	ErrSessionExists = errors.New("session already exists")
)

// Stream is the live, server-to-client half of a session.
type Stream interface {
	// SessionID returns the identifier handed to the client in the endpoint event.
	SessionID() string

	// Deliver hands a raw inbound payload to the session's protocol engine.
	// It returns once the payload has been accepted for processing; results
	// are written to the stream later.
	Deliver(ctx context.Context, payload []byte) error

	// Close requests teardown of the stream. Calls after the first are no-ops.
	Close(cause error)

	// Done is closed once Close has been called.
	Done() <-chan struct{}
}

// Registry maps session ids to their live streams. Implementations must be
// safe for concurrent use.
type Registry interface {
	// Insert registers s under s.SessionID().
	Insert(ctx context.Context, s Stream) error

	// Lookup returns the stream for id or ErrSessionNotFound.
	Lookup(ctx context.Context, id string) (Stream, error)

	// Delete removes id. It reports whether an entry was removed; deleting
	// an absent id is not an error.
	Delete(ctx context.Context, id string) (bool, error)

	// Len returns the number of live sessions.
	Len() int
}
