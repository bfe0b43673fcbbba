package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWalAppendAssignsMonotonicSeq(t *testing.T) {
	t.Parallel()

	w, err := Open(filepath.Join(t.TempDir(), "wal.log"), 0, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	seq1, err := w.Append(KindJobCreated, 1, JobCreated{Name: "a"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	seq2, err := w.Append(KindJobCreated, 2, JobCreated{Name: "b"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("seq1=%d seq2=%d, want 1,2", seq1, seq2)
	}
}

func TestWalFlushDurabilityAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := w.Append(KindJobCreated, 1, JobCreated{Name: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Append(KindJobDeleted, 2, JobDeleted{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Simulate an abrupt crash: no Close, just drop the handle.

	w2, err := Open(path, 0, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	var got []Envelope
	for {
		e, ok := w2.NextUnprocessed()
		if !ok {
			break
		}
		got = append(got, e)
		w2.MarkProcessed(e.Seq)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("unexpected seqs: %+v", got)
	}
	if w2.LastSeq() != 2 {
		t.Fatalf("LastSeq = %d, want 2", w2.LastSeq())
	}
}

func TestWalNextUnprocessedRespectsProcessedSeq(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if _, err := w.Append(KindJobCreated, int64(i), JobCreated{Name: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	w.MarkProcessed(1)

	e, ok := w.NextUnprocessed()
	if !ok {
		t.Fatalf("expected an unprocessed entry")
	}
	if e.Seq != 2 {
		t.Fatalf("Seq = %d, want 2", e.Seq)
	}
	if w.ProcessedSeq() != 1 {
		t.Fatalf("ProcessedSeq = %d, want 1", w.ProcessedSeq())
	}
}

func TestWalNeedsFlushBySize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0, Options{FlushSize: 2, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if w.NeedsFlush() {
		t.Fatalf("NeedsFlush true on empty buffer")
	}
	if _, err := w.Append(KindJobCreated, 1, JobCreated{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if w.NeedsFlush() {
		t.Fatalf("NeedsFlush true after 1 of 2")
	}
	if _, err := w.Append(KindJobCreated, 2, JobCreated{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !w.NeedsFlush() {
		t.Fatalf("NeedsFlush false after reaching FlushSize")
	}
}

func TestWalDiscardsCorruptedTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	good := `{"seq":1,"kind":"JobCreated","atMs":1,"data":{"name":"a"}}` + "\n"
	bad := `{"seq":2,"kind":"JobCreated` // truncated mid-line, no trailing newline
	if err := os.WriteFile(path, []byte(good+bad), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := Open(path, 0, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	e, ok := w.NextUnprocessed()
	if !ok {
		t.Fatalf("expected the valid first entry to survive")
	}
	if e.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", e.Seq)
	}
	w.MarkProcessed(1)
	if _, ok := w.NextUnprocessed(); ok {
		t.Fatalf("corrupted tail entry should not be replayed")
	}
}
