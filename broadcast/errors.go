package broadcast

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
)
