// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sort"
)

// tempoState is the locking state of the estimator.
type tempoState uint8

const (
	tempoUnlocked tempoState = iota
	tempoLocked
)

// TempoEstimator turns accepted-beat timestamps into a stabilized BPM.
//
// Raw per-beat BPM is noisy: missed onsets halve it, extra onsets double
// it, swing shifts it a few BPM either way. The estimator takes the median
// over a bounded interval history, rejects implausible tempi, and then
// applies hysteresis: once enough consecutive in-range estimates agree the
// tempo locks, and small fluctuations no longer move the displayed value.
// A large deviation (a genuine tempo change) breaks the lock immediately
// and republishes the raw estimate; a moderate one is treated as an
// outlier and ignored without unlocking.
type TempoEstimator struct {
	minBpm          int
	maxBpm          int
	lockThreshold   int
	tolerancePct    float64
	changeThreshold int

	intervals []int64 // Ring buffer of inter-beat intervals (ms)
	pos       int
	filled    int
	scratch   []int64 // Sort scratch for the median, reused across beats

	lastBeat int64
	seeded   bool

	state         tempoState
	lockedBpm     int
	inRangeStreak int
}

// NewTempoEstimator creates an estimator keeping the last `history`
// inter-beat intervals. Tuning is validated by config before construction.
func NewTempoEstimator(history, minBpm, maxBpm, lockThreshold int, tolerancePct float64, changeThreshold int) *TempoEstimator {
	return &TempoEstimator{
		minBpm:          minBpm,
		maxBpm:          maxBpm,
		lockThreshold:   lockThreshold,
		tolerancePct:    tolerancePct,
		changeThreshold: changeThreshold,
		intervals:       make([]int64, history),
		scratch:         make([]int64, 0, history),
	}
}

// OnBeat consumes one accepted beat and returns the BPM to display plus
// true when a value should be published. The very first beat only seeds
// the interval clock; estimates start once two intervals are recorded.
func (t *TempoEstimator) OnBeat(beat AcceptedBeat) (int, bool) {
	if !t.seeded {
		t.lastBeat = beat.At
		t.seeded = true
		return 0, false
	}

	interval := beat.At - t.lastBeat
	t.lastBeat = beat.At
	t.push(interval)

	if t.filled < 2 {
		return 0, false
	}

	rawBpm := int(math.Round(60000 / t.median()))
	if rawBpm < t.minBpm || rawBpm > t.maxBpm {
		return 0, false
	}

	switch t.state {
	case tempoUnlocked:
		t.inRangeStreak++
		if t.inRangeStreak >= t.lockThreshold {
			t.state = tempoLocked
			t.lockedBpm = rawBpm
		}
		return rawBpm, true

	default: // tempoLocked
		tolerance := float64(t.lockedBpm) * t.tolerancePct / 100
		deviation := math.Abs(float64(rawBpm - t.lockedBpm))
		switch {
		case deviation <= tolerance:
			// Within the band: hold the locked tempo, don't chase jitter.
			t.inRangeStreak++
			return t.lockedBpm, true
		case deviation >= float64(t.changeThreshold):
			// Genuine tempo change: unlock and re-acquire fast.
			t.state = tempoUnlocked
			t.lockedBpm = 0
			t.inRangeStreak = 1
			return rawBpm, true
		default:
			// Ambiguous outlier: stay locked, restart the streak.
			t.inRangeStreak = 0
			return t.lockedBpm, true
		}
	}
}

// Locked reports whether a tempo is currently locked, and at what BPM.
func (t *TempoEstimator) Locked() (int, bool) {
	return t.lockedBpm, t.state == tempoLocked
}

// push records an interval, evicting the oldest beyond capacity.
func (t *TempoEstimator) push(interval int64) {
	t.intervals[t.pos] = interval
	t.pos = (t.pos + 1) % len(t.intervals)
	if t.filled < len(t.intervals) {
		t.filled++
	}
}

// median returns the standard median of the recorded intervals: the middle
// element for an odd count, the mean of the two middle elements for even.
func (t *TempoEstimator) median() float64 {
	t.scratch = t.scratch[:0]
	if t.filled == len(t.intervals) {
		t.scratch = append(t.scratch, t.intervals...)
	} else {
		t.scratch = append(t.scratch, t.intervals[:t.filled]...)
	}
	sort.Slice(t.scratch, func(i, j int) bool { return t.scratch[i] < t.scratch[j] })

	mid := len(t.scratch) / 2
	if len(t.scratch)%2 == 1 {
		return float64(t.scratch[mid])
	}
	return float64(t.scratch[mid-1]+t.scratch[mid]) / 2
}

// Reset clears all estimator state back to initial values: unlocked,
// empty interval history, no seed timestamp.
func (t *TempoEstimator) Reset() {
	t.pos = 0
	t.filled = 0
	t.lastBeat = 0
	t.seeded = false
	t.state = tempoUnlocked
	t.lockedBpm = 0
	t.inRangeStreak = 0
}
