package trace

import (
	"sync"
	"testing"
	"time"
)

func TestTrace_RecordFlush_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	tr := New(TraceLevelDecisions)

	// WHEN a flush record is recorded
	tr.RecordFlush(FlushRecord{BatchID: 1, Size: 3, Reason: "size"})

	// THEN the trace contains one flush record with correct data
	flushes := tr.Flushes()
	if len(flushes) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(flushes))
	}
	if flushes[0].BatchID != 1 || flushes[0].Size != 3 {
		t.Errorf("unexpected flush record %+v", flushes[0])
	}
}

func TestTrace_RecordScale_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	tr := New(TraceLevelDecisions)

	// WHEN a scale record is recorded
	tr.RecordScale(ScaleRecord{CPUUsage: 0.9, Delta: 1, Instances: 2})

	// THEN the trace contains one scale record with correct data
	scales := tr.Scales()
	if len(scales) != 1 {
		t.Fatalf("expected 1 scale record, got %d", len(scales))
	}
	if scales[0].Instances != 2 {
		t.Errorf("expected 2 instances, got %d", scales[0].Instances)
	}
}

func TestTrace_LevelNone_DropsRecords(t *testing.T) {
	// GIVEN a trace with tracing disabled
	tr := New(TraceLevelNone)

	// WHEN records are added
	tr.RecordFlush(FlushRecord{BatchID: 1})
	tr.RecordScale(ScaleRecord{Delta: 1})

	// THEN nothing is kept
	if len(tr.Flushes()) != 0 || len(tr.Scales()) != 0 {
		t.Error("expected no records at level none")
	}
}

func TestTrace_Nil_IsSafe(t *testing.T) {
	var tr *Trace
	tr.RecordFlush(FlushRecord{BatchID: 1})
	tr.RecordScale(ScaleRecord{Delta: 1})
	if tr.Flushes() != nil || tr.Scales() != nil {
		t.Error("expected nil slices from nil trace")
	}
}

func TestTrace_EmptyLevelDefaultsToNone(t *testing.T) {
	if New("").Level != TraceLevelNone {
		t.Error("expected empty level to default to none")
	}
}

func TestTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	tr := New(TraceLevelDecisions)
	t0 := time.Unix(0, 0)
	for i := 1; i <= 3; i++ {
		tr.RecordFlush(FlushRecord{BatchID: uint64(i), Time: t0.Add(time.Duration(i) * time.Second)})
	}
	for i, f := range tr.Flushes() {
		if f.BatchID != uint64(i+1) {
			t.Errorf("position %d: expected batch %d, got %d", i, i+1, f.BatchID)
		}
	}
}

func TestTrace_ConcurrentRecording(t *testing.T) {
	tr := New(TraceLevelDecisions)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.RecordFlush(FlushRecord{Size: 1})
				tr.RecordScale(ScaleRecord{})
			}
		}()
	}
	wg.Wait()
	if len(tr.Flushes()) != 800 || len(tr.Scales()) != 800 {
		t.Errorf("expected 800 of each record, got %d flushes and %d scales", len(tr.Flushes()), len(tr.Scales()))
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"", "none", "decisions"} {
		if !IsValidTraceLevel(level) {
			t.Errorf("expected %q to be valid", level)
		}
	}
	if IsValidTraceLevel("verbose") {
		t.Error("expected verbose to be invalid")
	}
}
