package channel

import "errors"

var (
	ErrNotFound             = errors.New("repository not found")
	ErrAlreadyExists        = errors.New("repository already exists")
	ErrChannelAlreadyExists = errors.New("channel already exists")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrDuplicateMessage     = errors.New("duplicate message id")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrInvalidChannelName   = errors.New("invalid channel name")
)
