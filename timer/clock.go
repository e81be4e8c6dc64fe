package timer

import "time"

// Clock abstracts time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the real system clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
