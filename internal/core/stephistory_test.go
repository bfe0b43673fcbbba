package core

import "testing"

func TestStepHistoryEnterClosesAndAppends(t *testing.T) {
	t.Parallel()

	var h StepHistory
	h = h.Enter("init", 100)
	if len(h) != 1 || h[0].Outcome != StepOutcomeRunning {
		t.Fatalf("after first Enter: %+v", h)
	}

	h = h.CloseCurrent(150, StepOutcomeCompleted, "")
	h = h.Enter("plan", 150)
	if len(h) != 2 {
		t.Fatalf("len = %d, want 2", len(h))
	}
	if h[0].FinishedAtMS == nil || *h[0].FinishedAtMS != 150 || h[0].Outcome != StepOutcomeCompleted {
		t.Fatalf("first record not closed: %+v", h[0])
	}
	if h[1].StepName != "plan" || h[1].Outcome != StepOutcomeRunning {
		t.Fatalf("second record wrong: %+v", h[1])
	}
	if last := h.Last(); last.StepName != "plan" {
		t.Fatalf("Last().StepName = %q, want plan", last.StepName)
	}
}

func TestStepHistoryOnFailSameStepCycleAddsExactlyOneRecord(t *testing.T) {
	t.Parallel()

	var h StepHistory
	h = h.Enter("plan", 100)
	h = h.CloseCurrent(110, StepOutcomeFailed, "boom")
	h = h.Enter("plan", 110) // on_fail cycles back to the same step name

	if len(h) != 2 {
		t.Fatalf("len = %d, want 2 (on_fail cycle appends once)", len(h))
	}
	if h[1].StepName != "plan" || h[1].Outcome != StepOutcomeRunning {
		t.Fatalf("second record wrong: %+v", h[1])
	}
}

func TestStepHistoryIdempotentReplay(t *testing.T) {
	t.Parallel()

	var h StepHistory
	h = h.Enter("init", 100)
	before := append(StepHistory(nil), h...)

	// Re-applying the same advance (already at "init", still running)
	// must be a no-op.
	h = h.Enter("init", 100)

	if len(h) != len(before) {
		t.Fatalf("replay changed length: %d vs %d", len(h), len(before))
	}
	if h[0] != before[0] {
		t.Fatalf("replay mutated record: %+v vs %+v", h[0], before[0])
	}
}

func TestStepHistoryMonotonicity(t *testing.T) {
	t.Parallel()

	var h StepHistory
	h = h.Enter("a", 100)
	h = h.CloseCurrent(120, StepOutcomeCompleted, "")
	h = h.Enter("b", 120)
	h = h.CloseCurrent(200, StepOutcomeCompleted, "")
	h = h.Enter("c", 200)

	for i, rec := range h {
		if i == len(h)-1 {
			if rec.FinishedAtMS != nil {
				t.Fatalf("last record should be open: %+v", rec)
			}
			continue
		}
		if rec.FinishedAtMS == nil {
			t.Fatalf("non-last record %d not closed: %+v", i, rec)
		}
		if *rec.FinishedAtMS < rec.StartedAtMS {
			t.Fatalf("record %d finished before it started: %+v", i, rec)
		}
		if i > 0 && rec.StartedAtMS < h[i-1].StartedAtMS {
			t.Fatalf("timestamps not non-decreasing at %d", i)
		}
	}
	if h.Last().StepName != "c" {
		t.Fatalf("Last().StepName = %q, want c", h.Last().StepName)
	}
}

func TestActionTrackerPreservedOnFailResetOnDone(t *testing.T) {
	t.Parallel()

	tr := NewActionTracker()
	tr = tr.Increment(TriggerOnIdle, 0)
	tr = tr.Increment(TriggerOnIdle, 0)

	// on_fail: preserved.
	preserved := tr
	if preserved.Count(TriggerOnIdle, 0) != 2 {
		t.Fatalf("Count = %d, want 2", preserved.Count(TriggerOnIdle, 0))
	}

	// on_done: reset.
	reset := tr.Reset()
	if reset.Count(TriggerOnIdle, 0) != 0 {
		t.Fatalf("Count after Reset = %d, want 0", reset.Count(TriggerOnIdle, 0))
	}
}
