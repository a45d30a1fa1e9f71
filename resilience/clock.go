package resilience

import "time"

// Clock is a monotonic time source. All timing in this package — bucket
// refill, backpressure windows, per-client TTL sweeps — is derived from a
// Clock so tests can inject deterministic time instead of sleeping.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now, which on every supported platform returns a
// reading with a monotonic component attached.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// systemClock is the default Clock used when none is configured.
var systemClock Clock = realClock{}
