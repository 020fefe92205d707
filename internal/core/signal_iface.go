package core

import "errors"

// Frame is a raw text payload.
type Frame []byte

// ConnID identifies one transport connection for its whole lifetime.
type ConnID string

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// outbound queue is full.
	TrySend(f Frame) error
	Close()
}
