package domain

import "errors"

var (
	ErrInvalidEvent  = errors.New("invalid notification event")
	ErrMissingID     = errors.New("notification id is required")
	ErrInvalidStatus = errors.New("notification status is invalid")
)
