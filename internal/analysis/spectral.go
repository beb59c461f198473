// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"beatpulse/pkg/bitint"
)

// fluxWorkspace holds pre-allocated buffers for the spectral analysis so
// the per-frame path never allocates.
type fluxWorkspace struct {
	input     []float64    // Windowed real input
	spectrum  []complex128 // FFT complex output
	magnitude []float64    // Current magnitude spectrum
	previous  []float64    // Magnitude spectrum of the previous frame
	window    []float64    // Hann window coefficients
}

// FluxDetector is a spectral-flux onset detector. It compares each frame's
// magnitude spectrum to the previous frame's and sums the positive
// differences; a percussive onset shows up as a flux spike across many
// bins at once, which catches soft or tonal onsets the plain energy meter
// misses. The flux is compared against an adaptive mean over a rolling
// flux history, so the detector tracks the overall busyness of the signal.
//
// The detector is stateful across frames and fires at most one trigger
// per frame. It must see the same sequential frames as the LevelMeter and
// be Reset when the pipeline stops.
type FluxDetector struct {
	frameSize   int
	threshold   float64 // Flux must exceed mean*threshold
	sensitivity float64 // ...and this absolute floor

	fftObj    *fourier.FFT
	workspace fluxWorkspace

	history []float64 // Ring buffer of recent flux values
	pos     int
	filled  int
	sum     float64

	primed bool // False until one spectrum has been recorded
}

// NewFluxDetector creates a detector for power-of-2 frames. The history
// window bounds how far back the adaptive flux baseline looks.
func NewFluxDetector(frameSize int, threshold, sensitivity float64, window int) *FluxDetector {
	if !bitint.IsPowerOfTwo(frameSize) {
		panic("analysis: flux detector frame size must be a power of 2")
	}

	hann := make([]float64, frameSize)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(frameSize-1)))
	}

	bins := frameSize/2 + 1
	return &FluxDetector{
		frameSize:   frameSize,
		threshold:   threshold,
		sensitivity: sensitivity,
		fftObj:      fourier.NewFFT(frameSize),
		history:     make([]float64, window),
		workspace: fluxWorkspace{
			input:     make([]float64, frameSize),
			spectrum:  make([]complex128, bins),
			magnitude: make([]float64, bins),
			previous:  make([]float64, bins),
			window:    hann,
		},
	}
}

// Process analyzes one frame and returns a spectral trigger stamped with
// now (monotonic milliseconds), or nil. The flux history is updated for
// every frame, trigger or not.
func (d *FluxDetector) Process(frame []float64, now int64) *RawTrigger {
	ws := &d.workspace
	for i := range ws.input {
		if i < len(frame) {
			ws.input[i] = frame[i] * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	_ = d.fftObj.Coefficients(ws.spectrum, ws.input)
	for i, c := range ws.spectrum {
		ws.magnitude[i] = cmplx.Abs(c)
	}

	var flux float64
	if d.primed {
		for i, mag := range ws.magnitude {
			if diff := mag - ws.previous[i]; diff > 0 {
				flux += diff
			}
		}
	}
	copy(ws.previous, ws.magnitude)

	var trig *RawTrigger
	if d.primed && d.filled == len(d.history) {
		mean := d.sum / float64(d.filled)
		if flux > mean*d.threshold && flux > d.sensitivity {
			trig = &RawTrigger{Source: SourceSpectral, At: now}
		}
	}

	if d.primed {
		d.push(flux)
	}
	d.primed = true
	return trig
}

func (d *FluxDetector) push(flux float64) {
	if d.filled == len(d.history) {
		d.sum -= d.history[d.pos]
	} else {
		d.filled++
	}
	d.history[d.pos] = flux
	d.sum += flux
	d.pos = (d.pos + 1) % len(d.history)
}

// Reset clears the spectral memory and the flux baseline so a restarted
// pipeline does not trigger off stale spectra.
func (d *FluxDetector) Reset() {
	d.pos = 0
	d.filled = 0
	d.sum = 0
	d.primed = false
	for i := range d.workspace.previous {
		d.workspace.previous[i] = 0
	}
}
