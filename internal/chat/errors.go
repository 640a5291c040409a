package chat

import "errors"

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrNoSession    = errors.New("no active session")
	ErrWrongSession = errors.New("operation targets a different session")
	ErrSessionEnded = errors.New("session has ended")
)
