package chatkit

import (
	"errors"

	"github.com/matheus3301/chatkit/store"
)

// Sentinel errors surfaced by the client. Storage errors are
// distinguishable from not-found so callers can tell a corrupt cache
// from a simple miss.
var (
	ErrNotFound      = store.ErrNotFound
	ErrStorage       = store.ErrStorage
	ErrTimeout       = errors.New("chatkit: request timed out")
	ErrTokenExpired  = errors.New("chatkit: token expired")
	ErrKickoff       = errors.New("chatkit: kicked off by another session")
	ErrShutdown      = errors.New("chatkit: client is shut down")
	ErrNotConnected  = errors.New("chatkit: not connected")
	ErrRecallExpired = errors.New("chatkit: recall window elapsed")
)
