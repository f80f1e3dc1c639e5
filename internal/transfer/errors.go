package transfer

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid transfer config")
	ErrTimeout          = errors.New("timed out waiting for data")
	ErrRetriesExhausted = errors.New("retries exhausted waiting for acknowledgment")
)
