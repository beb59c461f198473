// SPDX-License-Identifier: MIT
package analysis

// BeatGate merges raw triggers from all detectors into a single
// accepted-beat timeline. A trigger is accepted only when at least
// `refractoryMs` has elapsed since the last accepted beat, so two
// detectors firing for the same physical beat collapse into one.
// This is the sole de-duplication mechanism between the sources.
type BeatGate struct {
	refractoryMs int64
	lastAccepted int64
	seeded       bool
}

// NewBeatGate creates a gate with the given refractory period in
// milliseconds.
func NewBeatGate(refractoryMs int64) *BeatGate {
	return &BeatGate{refractoryMs: refractoryMs}
}

// Accept evaluates one raw trigger. Triggers must arrive in timestamp
// order. It returns the accepted beat and true on acceptance; a rejected
// trigger has no side effect at all.
func (g *BeatGate) Accept(trig RawTrigger) (AcceptedBeat, bool) {
	if g.seeded && trig.At-g.lastAccepted < g.refractoryMs {
		return AcceptedBeat{}, false
	}
	g.lastAccepted = trig.At
	g.seeded = true
	return AcceptedBeat{At: trig.At}, true
}

// Reset clears the last accepted timestamp. Called on pipeline stop so a
// fresh start does not inherit stale timing.
func (g *BeatGate) Reset() {
	g.lastAccepted = 0
	g.seeded = false
}
