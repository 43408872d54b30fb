// Package system provides the wall clock used to stamp extraction times.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to whole seconds so the
// extraction time in the artifact is stable across encode and decode.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Fixed is a Clock that always reports the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
