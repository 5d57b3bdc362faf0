package clock

import "time"

// Clock abstracts time for services that schedule or age records.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a UTC wall clock.
func NewSystemClock() Clock { return systemClock{} }
