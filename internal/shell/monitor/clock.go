package monitor

import "time"

// =============================================================================
// Clock
// =============================================================================

// Clock abstracts time so poll loops run in virtual time under test.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock is the wall-clock implementation.
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall-clock Clock.
func RealClock() Clock { return realClock{} }
