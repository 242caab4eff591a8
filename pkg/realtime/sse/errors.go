package sse

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig classifies broadcaster construction failures.
	ErrInvalidConfig = errors.New("sse invalid config")
	// ErrClosed is returned when registering on a closed broadcaster.
	ErrClosed = errors.New("sse broadcaster closed")
	// ErrSubscriberDisconnected is returned by writes to a subscriber that already failed.
	ErrSubscriberDisconnected = errors.New("sse subscriber disconnected")
	// ErrNilSink is returned when a subscriber is registered without an output stream.
	ErrNilSink = errors.New("sse sink is required")
	// ErrSinkClosed is returned by writes to a stream whose request has ended.
	ErrSinkClosed = errors.New("sse sink closed")
	// ErrStreamingUnsupported indicates a response writer that cannot flush.
	ErrStreamingUnsupported = errors.New("response writer does not support streaming")
)

func configError(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, message)
}
