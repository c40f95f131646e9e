package store

import "errors"

var (
	// ErrPersistence wraps any failure of the underlying database
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("message not found")
)
