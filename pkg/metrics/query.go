package metrics

import "time"

// QueryMetrics records the activity of a query HTTP server.
//
// Implementations must be safe for concurrent use. A nil QueryMetrics is
// never passed around: callers fall back to NewNoopQueryMetrics.
type QueryMetrics interface {
	// RecordConnectionAccepted counts a connection handed to a handler.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a connection whose handler returned.
	RecordConnectionClosed()

	// RecordConnectionFailed counts a connection that ended with an error
	// or a panic. reason is "error" or "panic".
	RecordConnectionFailed(reason string)

	// RecordConnectionsForceClosed counts connections closed by a drain
	// that ran out of time.
	RecordConnectionsForceClosed(count int)

	// SetActiveConnections reports the number of live connections.
	SetActiveConnections(count int32)

	// RecordAcceptThrottled counts accepts delayed by the accept rate limit.
	RecordAcceptThrottled()

	// RecordQuery records one query execution. status is "ok",
	// "bad_request" or "error".
	RecordQuery(status string, duration time.Duration)
}

// NewNoopQueryMetrics returns a QueryMetrics that discards everything.
func NewNoopQueryMetrics() QueryMetrics {
	return noopQueryMetrics{}
}

type noopQueryMetrics struct{}

func (noopQueryMetrics) RecordConnectionAccepted()                         {}
func (noopQueryMetrics) RecordConnectionClosed()                           {}
func (noopQueryMetrics) RecordConnectionFailed(reason string)              {}
func (noopQueryMetrics) RecordConnectionsForceClosed(count int)            {}
func (noopQueryMetrics) SetActiveConnections(count int32)                  {}
func (noopQueryMetrics) RecordAcceptThrottled()                            {}
func (noopQueryMetrics) RecordQuery(status string, duration time.Duration) {}
