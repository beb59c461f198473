// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "beatpulse/internal/log"
)

// Recorder writes the raw input frames to a timestamped WAV file. It
// implements the pipeline's FrameSink and is driven from the processing
// goroutine; Close may be called from any goroutine.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	scale  float64
	closed bool
}

// NewRecorder creates the output directory if needed and opens a new
// recording file named after the current UTC time.
func NewRecorder(dir string, sampleRate float64, frameSize, bitDepth int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	name := "beatpulse-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	applog.Infof("recorder: writing to %s", path)
	return &Recorder{
		file:  file,
		enc:   wav.NewEncoder(file, int(sampleRate), bitDepth, 1, 1),
		scale: float64(int(1)<<(bitDepth-1)) - 1,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: 1,
				SampleRate:  int(sampleRate),
			},
			Data:           make([]int, frameSize),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// WriteFrame converts one float frame to integer PCM and appends it to
// the WAV file. Samples are clamped to [-1, 1]; post-gain analysis values
// never reach the recorder, only the raw capture does.
func (r *Recorder) WriteFrame(frame []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	if len(frame) > cap(r.buf.Data) {
		frame = frame[:cap(r.buf.Data)]
	}
	r.buf.Data = r.buf.Data[:len(frame)]
	for i, s := range frame {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		r.buf.Data[i] = int(s * r.scale)
	}

	return r.enc.Write(r.buf)
}

// Close finalizes the WAV header and closes the file. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("finalize recording: %w", err)
	}
	return r.file.Close()
}
