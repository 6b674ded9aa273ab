package trace

import (
	"testing"
	"time"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalFlushes != 0 || summary.TotalDecisions != 0 {
		t.Error("expected zero counts for nil trace")
	}
	if summary.FlushesByReason == nil {
		t.Error("expected non-nil reason map")
	}
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	tr := New(TraceLevelDecisions)

	// WHEN summarized
	summary := Summarize(tr)

	// THEN all counts are zero
	if summary.TotalFlushes != 0 || summary.MeanBatchSize != 0 {
		t.Errorf("expected zero flush stats, got %+v", summary)
	}
	if summary.FinalInstances != 0 {
		t.Errorf("expected 0 final instances, got %d", summary.FinalInstances)
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed flush and scale records
	tr := New(TraceLevelDecisions)
	tr.RecordFlush(FlushRecord{BatchID: 1, Size: 4, Reason: "size", Wait: 10 * time.Millisecond})
	tr.RecordFlush(FlushRecord{BatchID: 2, Size: 1, Reason: "stale", Wait: 120 * time.Millisecond})
	tr.RecordFlush(FlushRecord{BatchID: 3, Size: 4, Reason: "size", Err: "backend down"})
	tr.RecordScale(ScaleRecord{Delta: 1, Instances: 2})
	tr.RecordScale(ScaleRecord{Delta: 1, Instances: 3})
	tr.RecordScale(ScaleRecord{Delta: 0, Instances: 3})
	tr.RecordScale(ScaleRecord{Delta: -1, Instances: 2})

	// WHEN summarized
	summary := Summarize(tr)

	// THEN counts match the records
	if summary.TotalFlushes != 3 {
		t.Errorf("expected 3 flushes, got %d", summary.TotalFlushes)
	}
	if summary.FailedFlushes != 1 {
		t.Errorf("expected 1 failed flush, got %d", summary.FailedFlushes)
	}
	if summary.ItemsFlushed != 9 {
		t.Errorf("expected 9 items, got %d", summary.ItemsFlushed)
	}
	if summary.MeanBatchSize != 3 {
		t.Errorf("expected mean batch size 3, got %f", summary.MeanBatchSize)
	}
	if summary.MaxWait != 120*time.Millisecond {
		t.Errorf("expected max wait 120ms, got %v", summary.MaxWait)
	}
	if summary.FlushesByReason["size"] != 2 || summary.FlushesByReason["stale"] != 1 {
		t.Errorf("unexpected reason distribution %v", summary.FlushesByReason)
	}
	if summary.ScaleUps != 2 || summary.ScaleDowns != 1 || summary.Holds != 1 {
		t.Errorf("expected 2 up / 1 down / 1 hold, got %d / %d / %d", summary.ScaleUps, summary.ScaleDowns, summary.Holds)
	}
	if summary.FinalInstances != 2 {
		t.Errorf("expected 2 final instances, got %d", summary.FinalInstances)
	}
}
