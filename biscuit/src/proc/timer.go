package proc

import "time"

// Nanosleep blocks the current process until at least d has elapsed,
// tracked in kernel ticks rather than wall-clock time: a spurious wake
// must not return success before the deadline. Repeatedly yielding and
// rechecking the tick count, rather than registering a one-shot timer
// callback, means a wake that lands early just loops back to sleep
// instead of ever returning too soon.
func Nanosleep(d time.Duration) {
	ticksNeeded := uint64(d) * TickHz / uint64(time.Second)
	if (uint64(d)*TickHz)%uint64(time.Second) != 0 || ticksNeeded == 0 {
		ticksNeeded++ // round a sub-tick sleep up, never down
	}
	target := Now() + ticksNeeded
	for Now() < target {
		Yield()
	}
}
