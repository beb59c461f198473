// SPDX-License-Identifier: MIT
/*
Package pipeline drives the streaming beat analysis chain. A single
processing goroutine pulls frames from a FrameSource and runs
LevelMeter -> FluxDetector -> BeatGate -> TempoEstimator in strict frame
order; trigger de-duplication and interval math both depend on that
ordering, so frames are never processed in parallel. Results are
published through a pulse.Publisher, whose pulse-off timer is the only
work that runs asynchronously to the frame cadence.
*/
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"beatpulse/internal/analysis"
	"beatpulse/internal/config"
	applog "beatpulse/internal/log"
	"beatpulse/internal/pulse"
)

// readGapBackoff is how long the loop waits before retrying after a
// transient short read. Expected under normal device buffering, not an
// error.
const readGapBackoff = 5 * time.Millisecond

// FrameSource supplies sequential fixed-size blocks of mono samples
// normalized to [-1, 1]. ReadFrame blocks until a full frame is
// available; an empty frame with a nil error is a transient read gap,
// and io.EOF signals that the stream terminated. Implementations must
// unblock ReadFrame when Close is called.
type FrameSource interface {
	Open() error
	ReadFrame() ([]float64, error)
	Close() error
}

// FrameSink receives every processed frame, e.g. a WAV recorder. Must be
// set before Start.
type FrameSink interface {
	WriteFrame(frame []float64) error
}

// Pipeline owns the analysis components and the processing goroutine.
// Start and Stop are idempotent and safe to call concurrently; a Stop
// always cancels the pulse timer, resets all detector state, and
// releases the frame source before returning.
type Pipeline struct {
	cfg    *config.Config
	source FrameSource

	level *analysis.LevelMeter
	flux  *analysis.FluxDetector
	gate  *analysis.BeatGate
	tempo *analysis.TempoEstimator
	pub   *pulse.Publisher

	// now returns a monotonic timestamp in milliseconds. Replaceable in
	// tests for deterministic trigger timing.
	now func() int64

	sink         FrameSink
	sinkFailures int

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New builds a pipeline from a validated configuration and a frame
// source. Construction fails on any invalid tuning value; nothing is
// deferred to the processing path.
func New(cfg *config.Config, source FrameSource) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("pipeline: frame source is required")
	}

	window := cfg.BaselineFrames()
	d := &cfg.Detector
	t := &cfg.Tempo

	epoch := time.Now()
	return &Pipeline{
		cfg:    cfg,
		source: source,
		level:  analysis.NewLevelMeter(d.SoftwareGain, d.EnergyMultiplier, d.MinimumLevel, window),
		flux:   analysis.NewFluxDetector(cfg.Audio.FramesPerBuffer, d.SpectralThreshold, d.SpectralSensitivity, window),
		gate:   analysis.NewBeatGate(d.RefractoryMs),
		tempo: analysis.NewTempoEstimator(t.HistorySize, t.MinBpm, t.MaxBpm,
			t.LockThreshold, t.TolerancePercent, t.ChangeThresholdBpm),
		pub: pulse.NewPublisher(time.Duration(cfg.Pulse.DurationMs) * time.Millisecond),
		now: func() int64 { return time.Since(epoch).Milliseconds() },
	}, nil
}

// Publisher exposes the published state for observers and transports.
func (p *Pipeline) Publisher() *pulse.Publisher {
	return p.pub
}

// SetSink attaches a frame sink. Must be called before Start.
func (p *Pipeline) SetSink(sink FrameSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
	p.sinkFailures = 0
}

// Start opens the frame source and launches the processing goroutine.
// Starting an already-running pipeline is a logged no-op. If the source
// cannot be opened the error is returned and no state is left mutated.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		applog.Warnf("pipeline: start called while already running")
		return nil
	}

	if err := p.source.Open(); err != nil {
		return fmt.Errorf("pipeline: open frame source: %w", err)
	}

	// Fresh session: no detector state or published value may survive
	// from a previous run.
	p.resetAnalysis()
	p.pub.Reset()
	p.pub.SetRunning(true)

	p.running = true
	p.wg.Add(1)
	go p.run()

	applog.Infof("pipeline: started (frame=%d, rate=%.0fHz, refractory=%dms)",
		p.cfg.Audio.FramesPerBuffer, p.cfg.Audio.SampleRate, p.cfg.Detector.RefractoryMs)
	return nil
}

// Stop terminates the processing goroutine, releases the frame source,
// cancels the pulse timer, and resets all state. Stopping a pipeline that
// is not running only re-asserts the zero published state and is never an
// error.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.pub.Reset()
		p.mu.Unlock()
		return nil
	}
	p.running = false
	err := p.source.Close()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.resetAnalysis()
	p.pub.Reset()
	p.mu.Unlock()

	applog.Infof("pipeline: stopped")
	return err
}

// Running reports whether the processing goroutine is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// run is the processing loop. It exits when the source reports io.EOF
// (normal termination or Stop) or a read error.
func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		frame, err := p.source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				applog.Infof("pipeline: frame source terminated")
			} else {
				applog.Errorf("pipeline: frame read failed: %v", err)
			}
			p.sourceEnded()
			return
		}
		if len(frame) == 0 {
			// Short read, expected under device buffering. Retry.
			time.Sleep(readGapBackoff)
			continue
		}
		p.processFrame(frame)
	}
}

// processFrame runs one frame through the full chain, in order.
func (p *Pipeline) processFrame(frame []float64) {
	now := p.now()

	level, energyTrig := p.level.Process(frame, now)
	p.pub.SetLevel(level)

	spectralTrig := p.flux.Process(frame, now)

	p.handleTrigger(energyTrig)
	p.handleTrigger(spectralTrig)

	if p.sink != nil {
		p.writeSink(frame)
	}
}

// handleTrigger routes one raw trigger through the gate. Both detectors
// firing for the same beat collapse here: the second trigger lands inside
// the refractory window and is dropped.
func (p *Pipeline) handleTrigger(trig *analysis.RawTrigger) {
	if trig == nil {
		return
	}
	beat, ok := p.gate.Accept(*trig)
	if !ok {
		return
	}

	applog.Debugf("pipeline: beat accepted (source=%s, at=%dms)", trig.Source, beat.At)
	p.pub.Beat()

	if bpm, ok := p.tempo.OnBeat(beat); ok {
		p.pub.SetBPM(bpm)
	}
}

// writeSink forwards the frame to the attached sink, dropping the sink
// after too many consecutive failures so one broken recorder cannot spam
// the log forever.
func (p *Pipeline) writeSink(frame []float64) {
	if err := p.sink.WriteFrame(frame); err != nil {
		p.sinkFailures++
		applog.Errorf("pipeline: sink write failed (%d/%d): %v",
			p.sinkFailures, config.MaxConsecutiveWriteFailures, err)
		if p.sinkFailures >= config.MaxConsecutiveWriteFailures {
			applog.Errorf("pipeline: detaching sink after repeated failures")
			p.sink = nil
		}
		return
	}
	p.sinkFailures = 0
}

// sourceEnded handles a spontaneous end of stream. When Stop initiated
// the teardown the running flag is already false and Stop owns the
// cleanup; otherwise the pipeline resets itself and reports not-running.
func (p *Pipeline) sourceEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	_ = p.source.Close()
	p.resetAnalysis()
	p.pub.Reset()
}

// resetAnalysis clears every detector back to its initial state. Callers
// hold p.mu or run before the goroutine starts.
func (p *Pipeline) resetAnalysis() {
	p.level.Reset()
	p.flux.Reset()
	p.gate.Reset()
	p.tempo.Reset()
}
