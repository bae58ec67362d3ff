package hub

import "errors"

// Recoverable errors returned by the hub and its components. None of these
// should ever bring the process down; the gateway logs and drops the request.
var (
	ErrDuplicateClient = errors.New("client already registered")
	ErrUnknownClient   = errors.New("unknown client")
	ErrAlreadyWaiting  = errors.New("client is already waiting")
	ErrInvalidState    = errors.New("invalid client state for request")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("client is not a member of the room")
	ErrRoomClosed      = errors.New("room is closed")

	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageFlagged = errors.New("message flagged by moderation")
	ErrHubFull        = errors.New("too many clients")
	ErrHubStopped     = errors.New("hub is stopped")
)
