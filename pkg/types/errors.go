package types

import "errors"

var (
	// ErrUnavailable means the log or a collaborator is temporarily
	// unreachable. Callers retry with backoff, never drop.
	ErrUnavailable = errors.New("temporarily unavailable")

	// ErrInvalidInput rejects malformed events at ingress, before the log.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate is a normal outcome of at-least-once delivery.
	ErrDuplicate = errors.New("duplicate event")

	// ErrCapacityExceeded means a bounded window or store evicted entries.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrOwnershipLost means the partition lease expired mid-processing.
	// The worker must stop writing for that partition immediately.
	ErrOwnershipLost = errors.New("partition ownership lost")
)
