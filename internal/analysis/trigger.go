// SPDX-License-Identifier: MIT
/*
Package analysis implements the streaming beat analysis chain:

  - LevelMeter: per-frame level with an adaptive energy trigger
  - FluxDetector: spectral-flux onset trigger
  - BeatGate: refractory de-duplication of raw triggers
  - TempoEstimator: median BPM with locking hysteresis

All components are single-owner structs driven by one processing
goroutine, hold bounded state only, and reset via an explicit Reset().
None of them allocate on the per-frame path once constructed.
*/
package analysis

// TriggerSource identifies which detector produced a raw trigger.
type TriggerSource uint8

const (
	SourceEnergy TriggerSource = iota
	SourceSpectral
)

func (s TriggerSource) String() string {
	switch s {
	case SourceEnergy:
		return "energy"
	case SourceSpectral:
		return "spectral"
	default:
		return "unknown"
	}
}

// RawTrigger is a single onset event from one detector. It is ephemeral:
// produced while processing one frame and consumed immediately by the
// BeatGate.
type RawTrigger struct {
	Source TriggerSource
	At     int64 // Monotonic timestamp, milliseconds
}

// AcceptedBeat is a trigger that survived the refractory gate. At most one
// is produced per refractory window regardless of how many raw triggers
// arrive inside it.
type AcceptedBeat struct {
	At int64 // Monotonic timestamp, milliseconds
}
