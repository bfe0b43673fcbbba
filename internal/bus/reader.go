package bus

import (
	"time"

	"github.com/opus-domini/sentinel/internal/eventlog"
)

// walSource is the subset of *eventlog.Wal the Reader needs; narrowed to
// an interface so tests can drive it with a fake.
type walSource interface {
	NextUnprocessed() (eventlog.Envelope, bool)
}

// Reader pulls unprocessed events off a Wal, woken by Bus.Wake or by a
// polling fallback so a wake lost to a race is never fatal — only a
// delay until the next poll tick.
type Reader struct {
	wal      walSource
	bus      *Bus
	pollEvery time.Duration
}

// NewReader returns a Reader over wal, woken by bus. pollEvery bounds
// the worst-case delay between an Append and the Reader observing it if
// a wake is somehow missed; pass 0 for the default of one second.
func NewReader(wal walSource, b *Bus, pollEvery time.Duration) *Reader {
	if pollEvery <= 0 {
		pollEvery = time.Second
	}
	return &Reader{wal: wal, bus: b, pollEvery: pollEvery}
}

// Next blocks until an unprocessed event is available or ctxDone fires,
// returning ok=false in the latter case.
func (r *Reader) Next(ctxDone <-chan struct{}) (eventlog.Envelope, bool) {
	for {
		if env, ok := r.wal.NextUnprocessed(); ok {
			return env, true
		}
		select {
		case <-r.bus.C():
		case <-time.After(r.pollEvery):
		case <-ctxDone:
			return eventlog.Envelope{}, false
		}
	}
}
