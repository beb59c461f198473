// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"beatpulse/internal/config"
	applog "beatpulse/internal/log"
)

// captureQueueDepth bounds how many frames can sit between the PortAudio
// callback and the processing goroutine before frames are dropped.
const captureQueueDepth = 8

// Capture is the PortAudio-backed frame source. The stream callback
// copies mono float32 samples into pre-allocated frame buffers and hands
// them to a bounded channel; ReadFrame blocks on that channel. When the
// reader lags, the callback drops frames instead of blocking, since the
// audio callback must never stall.
//
// Capture supports repeated Open/Close cycles, so a pipeline can be
// restarted on the same source without leaking the device.
type Capture struct {
	cfg *config.Config

	mu     sync.Mutex
	stream *portaudio.Stream
	frames chan []float64
	open   bool

	// Frame buffer ring reused across callbacks. Sized beyond the queue
	// depth so a frame still held by the reader is never overwritten.
	ring    [][]float64
	ringPos int
}

// NewCapture creates a capture source for the configured input device.
// The device is not opened until Open.
func NewCapture(cfg *config.Config) *Capture {
	return &Capture{cfg: cfg}
}

// Open resolves the input device and starts the PortAudio stream.
func (c *Capture) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil
	}

	device, err := InputDevice(c.cfg.Audio.InputDevice)
	if err != nil {
		return err
	}

	latency := device.DefaultHighInputLatency
	if c.cfg.Audio.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	frameSize := c.cfg.Audio.FramesPerBuffer
	c.frames = make(chan []float64, captureQueueDepth)
	c.ring = make([][]float64, captureQueueDepth+2)
	for i := range c.ring {
		c.ring[i] = make([]float64, frameSize)
	}
	c.ringPos = 0

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.cfg.Audio.Channels,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: frameSize,
		SampleRate:      c.cfg.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	c.stream = stream
	c.open = true
	applog.Infof("capture: stream open on %q (%.0fHz, %d frames)",
		device.Name, c.cfg.Audio.SampleRate, frameSize)
	return nil
}

// callback runs on the PortAudio thread. It copies the first channel of
// the interleaved input into the next ring buffer and queues it, dropping
// the frame when the queue is full. No allocations, no blocking.
func (c *Capture) callback(in []float32) {
	buf := c.ring[c.ringPos]
	c.ringPos = (c.ringPos + 1) % len(c.ring)

	channels := c.cfg.Audio.Channels
	for i := range buf {
		if idx := i * channels; idx < len(in) {
			buf[i] = float64(in[idx])
		} else {
			buf[i] = 0
		}
	}

	select {
	case c.frames <- buf:
	default:
		// Reader lagging. Dropping keeps the callback real-time safe.
	}
}

// ReadFrame blocks until the next frame is available. Returns io.EOF
// once the source has been closed.
func (c *Capture) ReadFrame() ([]float64, error) {
	c.mu.Lock()
	frames := c.frames
	c.mu.Unlock()

	if frames == nil {
		return nil, io.EOF
	}
	frame, ok := <-frames
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

// Close stops the stream and unblocks any pending ReadFrame. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	c.open = false

	// Stop before closing the channel: Stop blocks until the callback
	// has returned, so nothing sends on frames after the close.
	var err error
	if serr := c.stream.Stop(); serr != nil {
		err = fmt.Errorf("stop input stream: %w", serr)
	}
	if cerr := c.stream.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close input stream: %w", cerr)
	}
	c.stream = nil

	close(c.frames)
	c.frames = nil

	applog.Infof("capture: stream closed")
	return err
}
