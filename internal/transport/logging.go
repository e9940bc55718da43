package transport

import (
	"sync/atomic"

	"sketchpad/internal/log"
	"sketchpad/internal/session"
)

// LoggingTransport implements the Transport interface by logging every Nth
// frame at debug level.
type LoggingTransport struct {
	every uint64
	count atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport(every int) *LoggingTransport {
	if every < 1 {
		every = 1
	}
	log.Debugf("Transport: Using LoggingTransport (every %d frames)", every)
	return &LoggingTransport{every: uint64(every)}
}

// Send logs the received state. It never fails.
func (lt *LoggingTransport) Send(state session.VisualState) error {
	if lt.count.Add(1)%lt.every != 0 {
		return nil
	}
	log.Debugf("Transport: frame=%d state=%s source=%s loudness=%.3f labels=%+v",
		state.Frame, state.State, state.Source, state.Loudness, state.Labels)
	return nil
}

// Sent returns the number of frames seen.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.count.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
