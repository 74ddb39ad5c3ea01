package service

import "time"

// Clock abstracts the current time so expiry, lockout and TOTP windows can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NewSystemClock returns the production clock.
func NewSystemClock() Clock {
	return SystemClock{}
}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
