// SPDX-License-Identifier: MIT
package analysis

import "testing"

func newTestEstimator() *TempoEstimator {
	// History 8, range 60-200, lock after 5, 5% tolerance, 12 BPM change.
	return NewTempoEstimator(8, 60, 200, 5, 5, 12)
}

// feedIntervals drives the estimator with beats spaced by the given
// intervals and returns the last published BPM (0 when nothing was
// published).
func feedIntervals(t *TempoEstimator, start int64, intervals ...int64) int {
	at := start
	t.OnBeat(AcceptedBeat{At: at})
	var last int
	for _, interval := range intervals {
		at += interval
		if bpm, ok := t.OnBeat(AcceptedBeat{At: at}); ok {
			last = bpm
		}
	}
	return last
}

func TestTempoMedian(t *testing.T) {
	tests := []struct {
		desc      string
		intervals []int64
		want      float64
	}{
		{"Odd count", []int64{500, 520, 480, 510, 490}, 500},
		{"Even count", []int64{100, 200, 400, 500}, 300},
		{"Single element", []int64{750}, 750},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			est := newTestEstimator()
			for _, iv := range tt.intervals {
				est.push(iv)
			}
			if got := est.median(); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.intervals, got, tt.want)
			}
		})
	}
}

func TestTempoBpmFromIntervals(t *testing.T) {
	est := newTestEstimator()

	// Median interval 500ms => 120 BPM.
	bpm := feedIntervals(est, 0, 500, 500)
	if bpm != 120 {
		t.Errorf("bpm = %d, want 120", bpm)
	}
}

func TestTempoFirstBeatOnlySeeds(t *testing.T) {
	est := newTestEstimator()

	if bpm, ok := est.OnBeat(AcceptedBeat{At: 1000}); ok {
		t.Errorf("first beat published %d, want no estimate", bpm)
	}
	// Second beat records one interval; still below the two needed.
	if bpm, ok := est.OnBeat(AcceptedBeat{At: 1500}); ok {
		t.Errorf("single interval published %d, want no estimate", bpm)
	}
	// Third beat: two intervals, estimate appears.
	if bpm, ok := est.OnBeat(AcceptedBeat{At: 2000}); !ok || bpm != 120 {
		t.Errorf("got (%d, %v), want (120, true)", bpm, ok)
	}
}

func TestTempoRejectsImplausibleBpm(t *testing.T) {
	est := newTestEstimator()

	// 100ms intervals => 600 BPM, far outside 60-200.
	if bpm := feedIntervals(est, 0, 100, 100, 100, 100); bpm != 0 {
		t.Errorf("implausible tempo published %d", bpm)
	}
	if locked, ok := est.Locked(); ok || locked != 0 {
		t.Errorf("implausible tempo changed lock state: (%d, %v)", locked, ok)
	}
}

func TestTempoLocking(t *testing.T) {
	est := newTestEstimator()

	// Five consecutive in-range estimates at 120 BPM lock the tempo.
	// Beats: first seeds, then 500ms apart; estimates start at the third
	// beat, so seven beats produce five estimates.
	bpm := feedIntervals(est, 0, 500, 500, 500, 500, 500, 500, 500)
	if bpm != 120 {
		t.Fatalf("displayed bpm = %d, want 120", bpm)
	}
	locked, ok := est.Locked()
	if !ok || locked != 120 {
		t.Fatalf("lock state = (%d, %v), want (120, true)", locked, ok)
	}
}

func TestTempoLockedIgnoresSmallFluctuation(t *testing.T) {
	est := newTestEstimator()
	feedIntervals(est, 0, 500, 500, 500, 500, 500, 500, 500) // locked at 120

	// Shift the median to ~484ms => raw 124, within 5% of 120. The
	// display must hold the locked tempo.
	at := int64(3500)
	var last int
	for n := 0; n < 8; n++ {
		at += 484
		if bpm, ok := est.OnBeat(AcceptedBeat{At: at}); ok {
			last = bpm
		}
	}
	if last != 120 {
		t.Errorf("displayed bpm chased fluctuation: %d, want 120", last)
	}
	if locked, ok := est.Locked(); !ok || locked != 120 {
		t.Errorf("lock lost on in-tolerance fluctuation: (%d, %v)", locked, ok)
	}
}

func TestTempoLargeDeviationUnlocks(t *testing.T) {
	est := newTestEstimator()
	feedIntervals(est, 0, 500, 500, 500, 500, 500, 500, 500) // locked at 120

	// Speed up to 135 BPM (444ms): deviation 15 >= change threshold 12.
	// Enough fast intervals to pull the median to 444.
	at := int64(3500)
	var published []int
	for n := 0; n < 6; n++ {
		at += 444
		if bpm, ok := est.OnBeat(AcceptedBeat{At: at}); ok {
			published = append(published, bpm)
		}
	}

	last := published[len(published)-1]
	if last != 135 {
		t.Errorf("displayed bpm after genuine change = %d, want 135", last)
	}

	// The moment the deviation crossed the threshold the raw value was
	// published immediately, not held at the old lock.
	sawImmediate := false
	for _, bpm := range published {
		if bpm == 135 {
			sawImmediate = true
			break
		}
		if bpm != 120 {
			t.Errorf("unexpected intermediate bpm %d", bpm)
		}
	}
	if !sawImmediate {
		t.Error("raw bpm was never published after unlock")
	}
}

func TestTempoModerateDeviationStaysLocked(t *testing.T) {
	est := newTestEstimator()
	feedIntervals(est, 0, 500, 500, 500, 500, 500, 500, 500) // locked at 120

	// Drift the whole history to 469ms => raw 128: deviation 8 is past
	// the 5% tolerance (6) but below the 12 BPM change threshold. The
	// estimator must keep displaying the locked tempo.
	for n := 0; n < 7; n++ {
		est.push(469)
	}
	bpm, ok := est.OnBeat(AcceptedBeat{At: 3969})
	if !ok {
		t.Fatal("expected a published value")
	}
	if bpm != 120 {
		t.Errorf("moderate outlier changed display to %d, want 120", bpm)
	}
	if locked, lockedOk := est.Locked(); !lockedOk || locked != 120 {
		t.Errorf("moderate outlier unlocked the tempo: (%d, %v)", locked, lockedOk)
	}
}

func TestTempoReset(t *testing.T) {
	est := newTestEstimator()
	feedIntervals(est, 0, 500, 500, 500, 500, 500, 500, 500)

	est.Reset()

	if locked, ok := est.Locked(); ok || locked != 0 {
		t.Errorf("reset kept lock state (%d, %v)", locked, ok)
	}
	// After reset the estimator behaves like new: first beat seeds only.
	if bpm, ok := est.OnBeat(AcceptedBeat{At: 10000}); ok {
		t.Errorf("first beat after reset published %d", bpm)
	}
	// And prior intervals are gone: two fresh 400ms intervals give 150,
	// not a blend with the old 500ms history.
	est.OnBeat(AcceptedBeat{At: 10400})
	if bpm, ok := est.OnBeat(AcceptedBeat{At: 10800}); !ok || bpm != 150 {
		t.Errorf("post-reset estimate = (%d, %v), want (150, true)", bpm, ok)
	}
}
