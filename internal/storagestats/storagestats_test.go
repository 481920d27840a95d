package storagestats

import (
	"testing"
	"time"
)

func TestAdviseWithNoConsolidationSamplesHoldsCurrent(t *testing.T) {
	a := NewAdvisor(16, 2)
	advice := a.Advise()
	if advice.ConsolidationsPerTick != 2 {
		t.Errorf("ConsolidationsPerTick = %d, want 2", advice.ConsolidationsPerTick)
	}
}

func TestAdviseIncreasesWhenWritesDominate(t *testing.T) {
	a := NewAdvisor(16, 1)
	for i := 0; i < 16; i++ {
		a.RecordWrite(400 * time.Microsecond)
		a.RecordConsolidation(50 * time.Microsecond)
	}
	advice := a.Advise()
	if advice.ConsolidationsPerTick != 2 {
		t.Errorf("ConsolidationsPerTick = %d, want 2 (increase from 1)", advice.ConsolidationsPerTick)
	}
}

func TestAdviseDecreasesWhenConsolidationIsBursty(t *testing.T) {
	a := NewAdvisor(16, 3)
	for i := 0; i < 8; i++ {
		a.RecordConsolidation(10 * time.Microsecond)
	}
	for i := 0; i < 8; i++ {
		a.RecordConsolidation(10000 * time.Microsecond)
	}
	advice := a.Advise()
	if advice.ConsolidationsPerTick != 2 {
		t.Errorf("ConsolidationsPerTick = %d, want 2 (decrease from 3)", advice.ConsolidationsPerTick)
	}
}

func TestWindowEvictsOldestSample(t *testing.T) {
	w := newWindow(4)
	for _, v := range []float64{1, 2, 3, 4, 100} {
		w.add(v)
	}
	vs := w.values()
	if len(vs) != 4 {
		t.Fatalf("len(values) = %d, want 4", len(vs))
	}
	for _, v := range vs {
		if v == 1 {
			t.Error("oldest sample (1) should have been evicted")
		}
	}
}
