package ingest

import (
	"context"
	"errors"
	"testing"
)

func TestTracker_NilIsSafe(t *testing.T) {
	var tr *Tracker
	tr.setPhase(PhaseIngesting)
	tr.attach(NewSlotLimiter(1))
	tr.partitionDone(1, nil)
	tr.finish(errors.New("x"))

	if got := tr.Snapshot(); got.Phase != "" {
		t.Errorf("nil tracker Snapshot = %+v, want zero value", got)
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker("run-1", "data.txt")
	if got := tr.Snapshot().Phase; got != PhaseStarting {
		t.Fatalf("initial phase = %q, want %q", got, PhaseStarting)
	}

	parts := partitionsOf("a", "b", "c")
	parts.Dropped = 2
	tr.partitioned(parts, 128)
	tr.setPhase(PhaseIngesting)
	tr.partitionDone(5, nil)
	tr.partitionDone(0, errors.New("boom"))
	tr.partitionDone(3, nil)
	tr.finish(nil)

	p := tr.Snapshot()
	if p.RunID != "run-1" || p.Source != "data.txt" {
		t.Errorf("identity = %q/%q", p.RunID, p.Source)
	}
	if p.LinesAccepted != 3 || p.LinesDropped != 2 || p.BytesRead != 128 {
		t.Errorf("line counters = %+v", p)
	}
	if p.PartitionsTotal != 3 || p.PartitionsDone != 3 || p.PartitionsFailed != 1 {
		t.Errorf("partition counters = %+v", p)
	}
	if p.RecordsCommitted != 8 {
		t.Errorf("RecordsCommitted = %d, want 8", p.RecordsCommitted)
	}
	if p.Phase != PhaseComplete || p.FinishedAt == nil || p.Error != "" {
		t.Errorf("finished state = phase %q, finished %v, error %q", p.Phase, p.FinishedAt, p.Error)
	}
}

func TestTracker_FinishWithError(t *testing.T) {
	tr := NewTracker("run-1", "data.txt")
	tr.finish(errors.New("source unavailable"))

	p := tr.Snapshot()
	if p.Phase != PhaseFailed {
		t.Errorf("Phase = %q, want %q", p.Phase, PhaseFailed)
	}
	if p.Error != "source unavailable" {
		t.Errorf("Error = %q", p.Error)
	}
}

func TestTracker_SnapshotReadsLiveSlots(t *testing.T) {
	tr := NewTracker("run-1", "data.txt")
	l := NewSlotLimiter(4)
	tr.attach(l)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	s := tr.Snapshot().Slots
	if s.Active != 1 || s.MaxConcurrent != 4 {
		t.Errorf("Slots = %+v", s)
	}
}
