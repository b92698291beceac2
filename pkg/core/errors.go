package core

import "errors"

// Common errors.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrOffline           = errors.New("remote gateway is offline")
	ErrMalformedSnapshot = errors.New("remote snapshot is malformed")
	ErrSessionActive     = errors.New("a session is already active for this owner")
	ErrSessionClosed     = errors.New("session is deactivated")
	ErrInvalidEntity     = errors.New("invalid entity")
)
