package service

import "time"

// Clock returns the current time. Services only ever compare UTC instants.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }
