// Package system provides the wall clock used to stamp fetched pages.
package system

import "time"

// Clock implements kb.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at microsecond precision with the
// monotonic reading stripped, so stamped records compare equal after a
// corpus round trip.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
