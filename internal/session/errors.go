package session

import "errors"

var (
	// ErrUnauthorized is returned when a client's Noise static key is not
	// present in the KeyStore allow-list (spec §7, state Authenticated ->
	// Closed/Unauthorized).
	ErrUnauthorized = errors.New("session: client static key not authorized")

	// ErrBadHandshake covers any admission-phase protocol violation other
	// than the Noise handshake itself or authorization: an unexpected
	// control frame, a malformed AssignMac payload, or similar (spec §4.H
	// step 3, "else Closed/BadHandshake").
	ErrBadHandshake = errors.New("session: bad post-handshake admission message")

	// ErrChannelClosed is returned by the downstream task when the client
	// table removes this session and closes its Done channel (spec §7); the
	// outbox itself is never closed.
	ErrChannelClosed = errors.New("session: outbox channel closed")
)
