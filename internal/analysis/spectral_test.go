// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

const fluxTestFrameSize = 256

func silentFrame() []float64 {
	return make([]float64, fluxTestFrameSize)
}

func toneFrame(amplitude float64) []float64 {
	frame := make([]float64, fluxTestFrameSize)
	for i := range frame {
		t := float64(i) / 44100
		frame[i] = amplitude * math.Sin(2*math.Pi*440*t)
	}
	return frame
}

// primeFlux feeds enough silence to prime the spectrum memory and fill
// the flux history.
func primeFlux(d *FluxDetector, window int) {
	for n := 0; n < window+2; n++ {
		d.Process(silentFrame(), 0)
	}
}

func TestFluxDetectorPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-power-of-2 frame size")
		}
	}()
	NewFluxDetector(1000, 1.6, 0.01, 8)
}

func TestFluxDetectorSilenceNeverTriggers(t *testing.T) {
	d := NewFluxDetector(fluxTestFrameSize, 1.6, 0.01, 8)
	primeFlux(d, 8)

	for i := 0; i < 20; i++ {
		if trig := d.Process(silentFrame(), int64(i)); trig != nil {
			t.Fatalf("silence triggered on frame %d", i)
		}
	}
}

func TestFluxDetectorFiresOnOnset(t *testing.T) {
	d := NewFluxDetector(fluxTestFrameSize, 1.6, 0.01, 8)
	primeFlux(d, 8)

	trig := d.Process(toneFrame(0.8), 77)
	if trig == nil {
		t.Fatal("expected trigger on tone onset after silence")
	}
	if trig.Source != SourceSpectral {
		t.Errorf("trigger source = %v, want spectral", trig.Source)
	}
	if trig.At != 77 {
		t.Errorf("trigger timestamp = %d, want 77", trig.At)
	}
}

func TestFluxDetectorSustainedToneDoesNotRetrigger(t *testing.T) {
	d := NewFluxDetector(fluxTestFrameSize, 1.6, 0.01, 8)
	primeFlux(d, 8)

	if trig := d.Process(toneFrame(0.8), 0); trig == nil {
		t.Fatal("expected trigger on onset")
	}

	// The identical spectrum repeats: positive flux is ~zero, so a held
	// note is one onset, not a trigger per frame.
	if trig := d.Process(toneFrame(0.8), 1); trig != nil {
		t.Error("sustained tone retriggered")
	}
}

func TestFluxDetectorNoTriggerUntilHistoryFull(t *testing.T) {
	d := NewFluxDetector(fluxTestFrameSize, 1.6, 0.01, 8)

	// Onset with no flux baseline yet: must not fire.
	d.Process(silentFrame(), 0)
	if trig := d.Process(toneFrame(0.8), 1); trig != nil {
		t.Error("trigger fired before the flux history was full")
	}
}

func TestFluxDetectorReset(t *testing.T) {
	d := NewFluxDetector(fluxTestFrameSize, 1.6, 0.01, 8)
	primeFlux(d, 8)

	d.Reset()

	// After reset the detector has no spectral memory or baseline; an
	// immediate onset must not fire.
	if trig := d.Process(toneFrame(0.8), 0); trig != nil {
		t.Error("trigger fired immediately after reset")
	}
}

func BenchmarkFluxDetectorProcess(b *testing.B) {
	d := NewFluxDetector(512, 1.6, 0.01, 86)
	frame := make([]float64, 512)
	for i := range frame {
		t := float64(i) / 44100
		frame[i] = 0.5 * math.Sin(2*math.Pi*220*t)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Process(frame, 0)
	}
}
