package notify

import "time"

// Clock abstracts time so session tests can drive the poll and heartbeat
// cadences without real sleeps.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the session needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realClock struct{}

// RealClock returns the wall-clock implementation used in production.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) Chan() <-chan time.Time {
	return rt.t.C
}

func (rt realTicker) Stop() {
	rt.t.Stop()
}
