// Request/response timing for a single exchange.
//
// DESIGN: Four marks, recorded with time.Now() so the monotonic clock
// reading is kept. Accessors and derived durations fail with ErrNotRecorded
// until the corresponding mark has happened; a precondition violation is an
// integration bug in the caller and is never silently defaulted.
package accesslog

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRecorded is returned when a timing value is requested before the
// corresponding mark call has happened. Match with errors.Is.
var ErrNotRecorded = errors.New("timing mark not recorded")

// Timing holds the four lifecycle timestamps of one HTTP exchange.
// A Timing is owned by exactly one exchange and must not be shared across
// goroutines; re-marking a checkpoint overwrites the previous value.
type Timing struct {
	requestStart  time.Time
	requestEnd    time.Time
	responseStart time.Time
	responseEnd   time.Time
}

// NewTiming creates an empty Timing with no marks recorded.
func NewTiming() *Timing {
	return &Timing{}
}

// RequestStarted marks the arrival of the request.
func (t *Timing) RequestStarted() { t.requestStart = time.Now() }

// RequestEnded marks the point at which the request was fully read.
func (t *Timing) RequestEnded() { t.requestEnd = time.Now() }

// ResponseStarted marks the start of the response (first header write).
func (t *Timing) ResponseStarted() { t.responseStart = time.Now() }

// ResponseEnded marks the completion of the response body.
func (t *Timing) ResponseEnded() { t.responseEnd = time.Now() }

// RequestStartTime returns the time recorded by RequestStarted.
func (t *Timing) RequestStartTime() (time.Time, error) {
	if t.requestStart.IsZero() {
		return time.Time{}, fmt.Errorf("request start time: %w", ErrNotRecorded)
	}
	return t.requestStart, nil
}

// RequestEndTime returns the time recorded by RequestEnded.
func (t *Timing) RequestEndTime() (time.Time, error) {
	if t.requestEnd.IsZero() {
		return time.Time{}, fmt.Errorf("request end time: %w", ErrNotRecorded)
	}
	return t.requestEnd, nil
}

// ResponseStartTime returns the time recorded by ResponseStarted.
func (t *Timing) ResponseStartTime() (time.Time, error) {
	if t.responseStart.IsZero() {
		return time.Time{}, fmt.Errorf("response start time: %w", ErrNotRecorded)
	}
	return t.responseStart, nil
}

// ResponseEndTime returns the time recorded by ResponseEnded.
func (t *Timing) ResponseEndTime() (time.Time, error) {
	if t.responseEnd.IsZero() {
		return time.Time{}, fmt.Errorf("response end time: %w", ErrNotRecorded)
	}
	return t.responseEnd, nil
}

// RequestDuration returns requestEnd - requestStart.
func (t *Timing) RequestDuration() (time.Duration, error) {
	end, err := t.RequestEndTime()
	if err != nil {
		return 0, err
	}
	start, err := t.RequestStartTime()
	if err != nil {
		return 0, err
	}
	return end.Sub(start), nil
}

// ResponseDuration returns responseEnd - responseStart.
func (t *Timing) ResponseDuration() (time.Duration, error) {
	end, err := t.ResponseEndTime()
	if err != nil {
		return 0, err
	}
	start, err := t.ResponseStartTime()
	if err != nil {
		return 0, err
	}
	return end.Sub(start), nil
}

// TotalDuration returns responseEnd - requestStart, the full wall time of
// the exchange as seen by the server.
func (t *Timing) TotalDuration() (time.Duration, error) {
	end, err := t.ResponseEndTime()
	if err != nil {
		return 0, err
	}
	start, err := t.RequestStartTime()
	if err != nil {
		return 0, err
	}
	return end.Sub(start), nil
}
