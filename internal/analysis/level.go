// SPDX-License-Identifier: MIT
package analysis

import "math"

// LevelMeter computes the per-frame input level and fires an energy
// trigger when a frame spikes above an adaptive rolling baseline.
//
// The baseline is the mean of the last `window` frame levels. No trigger
// can fire until that history is full, so the meter never triggers off an
// insufficient baseline right after start. The peak floor stops the
// adaptive threshold from firing in a near-silent room, where even a tiny
// spike clears a very quiet baseline.
type LevelMeter struct {
	gain       float64 // Software gain applied to every sample
	multiplier float64 // Threshold = baseline * multiplier
	minPeak    float64 // Absolute peak amplitude floor for triggering

	history []float64 // Ring buffer of recent frame levels
	pos     int       // Next write position in history
	filled  int       // Number of valid entries, <= len(history)
	sum     float64   // Running sum of history entries
}

// NewLevelMeter creates a level meter with a baseline window of the given
// number of frames. Tuning is validated by config before construction.
func NewLevelMeter(gain, multiplier, minPeak float64, window int) *LevelMeter {
	return &LevelMeter{
		gain:       gain,
		multiplier: multiplier,
		minPeak:    minPeak,
		history:    make([]float64, window),
	}
}

// Process analyzes one frame and returns its level plus an optional energy
// trigger stamped with now (monotonic milliseconds). The frame level is
// always pushed into the rolling history, trigger or not, so the baseline
// keeps adapting through loud passages.
func (m *LevelMeter) Process(frame []float64, now int64) (float64, *RawTrigger) {
	var sum, peak float64
	for _, s := range frame {
		a := math.Abs(s) * m.gain
		sum += a
		if a > peak {
			peak = a
		}
	}
	level := sum / float64(len(frame))

	var trig *RawTrigger
	if m.filled == len(m.history) {
		baseline := m.sum / float64(m.filled)
		if level > baseline*m.multiplier && peak > m.minPeak {
			trig = &RawTrigger{Source: SourceEnergy, At: now}
		}
	}

	m.push(level)
	return level, trig
}

// push records a frame level, evicting the oldest once the window is full.
func (m *LevelMeter) push(level float64) {
	if m.filled == len(m.history) {
		m.sum -= m.history[m.pos]
	} else {
		m.filled++
	}
	m.history[m.pos] = level
	m.sum += level
	m.pos = (m.pos + 1) % len(m.history)
}

// Reset discards the rolling baseline so a restarted pipeline re-learns
// the room level from scratch.
func (m *LevelMeter) Reset() {
	m.pos = 0
	m.filled = 0
	m.sum = 0
}
