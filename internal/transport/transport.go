// Package transport delivers per-frame visual state to renderers outside the
// process.
package transport

import (
	"errors"

	"sketchpad/internal/session"
)

// Transport defines a generic interface for publishing visual state.
// Implementations should be thread-safe and must not block the frame loop.
type Transport interface {
	Send(state session.VisualState) error
	Close() error
}

// Multi fans every frame out to several transports.
type Multi []Transport

// Send delivers state to every transport and joins their errors.
func (m Multi) Send(state session.VisualState) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Transport    = Multi(nil)
	_ session.Sink = Multi(nil)
)
