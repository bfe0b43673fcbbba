package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Default group-commit tuning, per spec.md §4.1 ("flush every ~10ms or
// when buffer >= N events"). Both are overridable via Options.
const (
	DefaultFlushInterval = 10 * time.Millisecond
	DefaultFlushSize      = 200
)

// Options configures a Wal's group-commit behavior.
type Options struct {
	FlushInterval time.Duration
	FlushSize     int
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.FlushSize <= 0 {
		o.FlushSize = DefaultFlushSize
	}
	return o
}

// Wal is the append-only, buffered, group-commit write-ahead log of
// spec.md §4.1. It assigns strictly monotonic sequence numbers and
// guarantees that after Flush returns, every appended event up to that
// point survives a process crash.
type Wal struct {
	mu sync.Mutex

	path string
	file *os.File
	opts Options

	lastSeq      uint64
	processedSeq uint64

	buf        []Envelope
	lastFlush  time.Time
	unreadFrom int // index into the on-disk log the reader has not yet consumed, tracked via replay slice

	replay    []Envelope // full in-memory history used to serve next_unprocessed
	replayPos int        // index of the next entry with seq > processedSeq
}

// Open loads path (creating it if absent), scanning existing entries to
// find the last assigned sequence number. A corrupted tail entry is
// discarded with a warning; earlier entries are preserved (spec.md
// §4.1 Failure).
func Open(path string, processedSeq uint64, opts Options) (*Wal, error) {
	opts = opts.withDefaults()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}

	entries, lastSeq, truncatedBytes, err := scanEntries(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("scan wal %s: %w", path, err)
	}
	if truncatedBytes > 0 {
		slog.Warn("wal: discarding corrupted tail entry", "path", path, "bytes", truncatedBytes)
		if truncErr := f.Truncate(int64(fileSizeMinus(f, truncatedBytes))); truncErr != nil {
			slog.Warn("wal: truncate corrupted tail failed", "path", path, "err", truncErr)
		}
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek wal %s: %w", path, err)
	}

	w := &Wal{
		path:         path,
		file:         f,
		opts:         opts,
		lastSeq:      lastSeq,
		processedSeq: processedSeq,
		replay:       entries,
		lastFlush:    time.Now(),
	}
	w.replayPos = w.firstUnprocessedIndex()
	return w, nil
}

func fileSizeMinus(f *os.File, n int) int64 {
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	size := info.Size() - int64(n)
	if size < 0 {
		return 0
	}
	return size
}

// scanEntries reads every well-formed JSON line in f, returning them in
// order plus the highest seq observed. If the final line is incomplete
// or malformed, it is dropped and its byte length returned so the
// caller can truncate the file to the last valid boundary.
func scanEntries(f *os.File) (entries []Envelope, lastSeq uint64, truncatedBytes int, err error) {
	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		return nil, 0, 0, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var offset int
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := len(line) + 1 // account for the newline consumed
		if len(bytes.TrimSpace(line)) == 0 {
			offset += lineLen
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			// Malformed line: treat as a corrupted tail only if it is
			// genuinely the last content in the file; otherwise it is a
			// mid-file corruption we still drop but cannot "truncate"
			// away cleanly, so we just skip it.
			truncatedBytes = lineLen
			offset += lineLen
			continue
		}
		truncatedBytes = 0
		entries = append(entries, env)
		if env.Seq > lastSeq {
			lastSeq = env.Seq
		}
		offset += lineLen
	}
	if serr := scanner.Err(); serr != nil {
		return entries, lastSeq, 0, serr
	}
	// lineLen counted a newline after every line; a final line cut off
	// mid-write has none, so that byte is not part of the tail.
	if truncatedBytes > 0 {
		if info, statErr := f.Stat(); statErr == nil && int64(offset) > info.Size() {
			truncatedBytes -= int(int64(offset) - info.Size())
		}
	}
	return entries, lastSeq, truncatedBytes, nil
}

func (w *Wal) firstUnprocessedIndex() int {
	for i, e := range w.replay {
		if e.Seq > w.processedSeq {
			return i
		}
	}
	return len(w.replay)
}

// Append assigns the next sequence number, appends one JSON line to the
// in-memory buffer, and returns the assigned seq. It does not fsync;
// call Flush (or wait for NeedsFlush/the group-commit ticker) for
// durability.
func (w *Wal) Append(kind Kind, atMS int64, payload any) (uint64, error) {
	env, err := New(kind, atMS, payload)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeq++
	env.Seq = w.lastSeq
	w.buf = append(w.buf, env)
	w.replay = append(w.replay, env)
	return env.Seq, nil
}

// NeedsFlush reports whether the flush interval has elapsed or the
// buffer has reached the configured size threshold.
func (w *Wal) NeedsFlush() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.needsFlushLocked()
}

func (w *Wal) needsFlushLocked() bool {
	if len(w.buf) == 0 {
		return false
	}
	if len(w.buf) >= w.opts.FlushSize {
		return true
	}
	return time.Since(w.lastFlush) >= w.opts.FlushInterval
}

// Flush writes the buffer to the file and fsyncs exactly once, grouping
// every write since the last flush ("group commit"). A flush error is a
// durability failure and is fatal per spec.md §7; callers should abort
// the process rather than retry silently.
func (w *Wal) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Wal) flushLocked() error {
	if len(w.buf) == 0 {
		w.lastFlush = time.Now()
		return nil
	}

	var out bytes.Buffer
	for _, env := range w.buf {
		line, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal wal entry seq=%d: %w", env.Seq, err)
		}
		out.Write(line)
		out.WriteByte('\n')
	}

	if _, err := w.file.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write wal %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync wal %s: %w", w.path, err)
	}

	w.buf = w.buf[:0]
	w.lastFlush = time.Now()
	return nil
}

// NextUnprocessed returns the next entry with seq > ProcessedSeq(), in
// order, or ok=false if none is currently buffered.
func (w *Wal) NextUnprocessed() (Envelope, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.replayPos < len(w.replay) {
		e := w.replay[w.replayPos]
		if e.Seq > w.processedSeq {
			return e, true
		}
		w.replayPos++
	}
	return Envelope{}, false
}

// MarkProcessed advances the in-memory processed cursor. It is
// persisted externally by a snapshot, not by the WAL itself.
func (w *Wal) MarkProcessed(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.processedSeq {
		w.processedSeq = seq
	}
	for w.replayPos < len(w.replay) && w.replay[w.replayPos].Seq <= w.processedSeq {
		w.replayPos++
	}
}

// ProcessedSeq returns the last acknowledged sequence number.
func (w *Wal) ProcessedSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processedSeq
}

// LastSeq returns the most recently assigned sequence number.
func (w *Wal) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// Close flushes any buffered entries and closes the underlying file.
func (w *Wal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
