// Package bus is the in-memory wake signal between event producers and
// the runtime dispatch loop (spec.md §4.3). It carries no event data of
// its own: the loop always re-reads pending work from the WAL via
// NextUnprocessed, so a dropped or coalesced wake can never lose an
// event, only delay its processing until the next wake.
package bus

// Bus is a single-slot, non-blocking wake channel. Multiple concurrent
// Wake calls while a wake is already pending collapse into one signal:
// the reader is still guaranteed to observe every event appended before
// the wake, because it always drains the WAL to the end before
// blocking again.
type Bus struct {
	wake chan struct{}
}

// New returns a Bus ready for use.
func New() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

// Wake signals the reader without blocking. If a wake is already
// pending, this is a no-op.
func (b *Bus) Wake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// C returns the channel the dispatch loop selects on.
func (b *Bus) C() <-chan struct{} {
	return b.wake
}
