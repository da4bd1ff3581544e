package conversation

import "errors"

var (
	// ErrBusy is returned by Send while a previous send is still outstanding.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyInput is returned by Send when there is neither text nor an attachment.
	ErrEmptyInput = errors.New("message is empty")
	// ErrSessionNotFound is returned by SelectSession for an unknown ID.
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidModel    = errors.New("invalid model")
	ErrInvalidLanguage = errors.New("invalid language")
)
