package worker

import "time"

// Clock abstracts monotonic time for the production loop, so the deadline
// scheduling logic is testable without real sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock used in production.
func RealClock() Clock { return realClock{} }
