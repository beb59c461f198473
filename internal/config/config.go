// Package config defines the runtime configuration for the beat engine:
// audio capture settings, detector and tempo tuning, pulse output, and
// optional recording/transport sections. Invalid tuning fails Validate at
// construction so no bad value can surface later on the processing path.
package config

import (
	"fmt"
	"time"

	"beatpulse/pkg/bitint"
)

// Defaults and hard limits for the engine configuration. The detector and
// tempo values are empirically tuned starting points, not derived constants;
// they can all be overridden from the config file or flags.
const (
	DefaultInputDevice     = MinDeviceID // System default input device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/FFT resolution
	DefaultChannels        = 1           // Mono analysis
	DefaultLowLatency      = false

	DefaultSoftwareGain     = 1.5  // Applied before all level analysis
	DefaultEnergyMultiplier = 1.15 // Trigger when level > baseline*multiplier
	DefaultMinimumLevel     = 0.08 // Peak floor, suppresses quiet-room triggers
	DefaultRefractoryMs     = 250  // Minimum spacing between accepted beats

	DefaultSpectralThreshold   = 1.6  // Flux vs rolling mean multiplier
	DefaultSpectralSensitivity = 0.02 // Absolute flux floor

	DefaultTempoHistory       = 8   // Inter-beat intervals kept for the median
	DefaultMinBpm             = 60  // Plausible tempo range lower bound
	DefaultMaxBpm             = 200 // Plausible tempo range upper bound
	DefaultLockThreshold      = 5   // In-range beats required to lock
	DefaultTolerancePercent   = 5   // Locked tempo tolerance band
	DefaultChangeThresholdBpm = 12  // Deviation that breaks a lock

	DefaultPulseDurationMs = 50 // Visual pulse on-time per beat

	MinDeviceID   = -1     // -1 selects the system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxFrameSize  = 8192   // Maximum frames per buffer

	// Recording write failures tolerated before recording shuts itself off.
	MaxConsecutiveWriteFailures = 5
)

// Config is the root configuration, loaded from YAML and/or flags.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Command   string          `yaml:"-"` // One-off command ("list") instead of running the engine
	Run       bool            `yaml:"-"` // Set by the CLI when the engine should run
	Audio     AudioConfig     `yaml:"audio"`
	Detector  DetectorConfig  `yaml:"detector"`
	Tempo     TempoConfig     `yaml:"tempo"`
	Pulse     PulseConfig     `yaml:"pulse"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds capture settings, fixed for the lifetime of a pipeline.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default)
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Samples per analysis frame (power of 2)
	Channels        int     `yaml:"channels"`          // Captured channels; analysis is mono
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency from the device
}

// DetectorConfig tunes the energy and spectral beat detectors.
type DetectorConfig struct {
	SoftwareGain        float64 `yaml:"software_gain"`        // Gain applied before analysis
	EnergyMultiplier    float64 `yaml:"energy_multiplier"`    // Adaptive threshold over the rolling baseline
	MinimumLevel        float64 `yaml:"minimum_level"`        // Absolute peak floor for energy triggers
	RollingHistory      int     `yaml:"rolling_history"`      // Baseline window in frames (0 = ~1s auto)
	RefractoryMs        int64   `yaml:"refractory_ms"`        // Beat gate minimum spacing
	SpectralThreshold   float64 `yaml:"spectral_threshold"`   // Flux multiplier over its rolling mean
	SpectralSensitivity float64 `yaml:"spectral_sensitivity"` // Absolute flux floor
}

// TempoConfig tunes the BPM estimator and its locking hysteresis.
type TempoConfig struct {
	HistorySize        int     `yaml:"history_size"`         // Inter-beat intervals kept for the median
	MinBpm             int     `yaml:"min_bpm"`              // Plausibility range
	MaxBpm             int     `yaml:"max_bpm"`              //
	LockThreshold      int     `yaml:"lock_threshold"`       // Consecutive in-range estimates to lock
	TolerancePercent   float64 `yaml:"tolerance_percent"`    // Band around the locked tempo
	ChangeThresholdBpm int     `yaml:"change_threshold_bpm"` // Deviation that unlocks immediately
}

// PulseConfig tunes the published beat pulse.
type PulseConfig struct {
	DurationMs int `yaml:"duration_ms"` // Pulse on-time after each accepted beat
}

// RecordingConfig enables WAV recording of the raw input stream.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

// TransportConfig enables publishing the engine state to observers over
// the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketPort    string        `yaml:"websocket_port"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	SendInterval     time.Duration `yaml:"send_interval"`
}

// New returns a Config populated with the package defaults.
func New() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        DefaultChannels,
			LowLatency:      DefaultLowLatency,
		},
		Detector: DetectorConfig{
			SoftwareGain:        DefaultSoftwareGain,
			EnergyMultiplier:    DefaultEnergyMultiplier,
			MinimumLevel:        DefaultMinimumLevel,
			RollingHistory:      0, // derived from sample rate at construction
			RefractoryMs:        DefaultRefractoryMs,
			SpectralThreshold:   DefaultSpectralThreshold,
			SpectralSensitivity: DefaultSpectralSensitivity,
		},
		Tempo: TempoConfig{
			HistorySize:        DefaultTempoHistory,
			MinBpm:             DefaultMinBpm,
			MaxBpm:             DefaultMaxBpm,
			LockThreshold:      DefaultLockThreshold,
			TolerancePercent:   DefaultTolerancePercent,
			ChangeThresholdBpm: DefaultChangeThresholdBpm,
		},
		Pulse: PulseConfig{
			DurationMs: DefaultPulseDurationMs,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketPort:    "8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			SendInterval:     33 * time.Millisecond, // ~30Hz
		},
	}
}

// Validate checks every tuning parameter once, at construction. A pipeline
// is never built from an invalid Config, so the processing path can assume
// all values are sane.
func (c *Config) Validate() error {
	a := &c.Audio
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device %d is invalid", a.InputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxFrameSize {
		return fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]", a.FramesPerBuffer, MaxFrameSize)
	}
	if !bitint.IsPowerOfTwo(a.FramesPerBuffer) {
		return fmt.Errorf("audio.frames_per_buffer %d must be a power of 2", a.FramesPerBuffer)
	}
	if a.Channels < 1 {
		return fmt.Errorf("audio.channels %d must be >= 1", a.Channels)
	}

	d := &c.Detector
	if d.SoftwareGain <= 0 {
		return fmt.Errorf("detector.software_gain must be positive, got %g", d.SoftwareGain)
	}
	if d.EnergyMultiplier <= 1 {
		return fmt.Errorf("detector.energy_multiplier must be > 1, got %g", d.EnergyMultiplier)
	}
	if d.MinimumLevel <= 0 {
		return fmt.Errorf("detector.minimum_level must be positive, got %g", d.MinimumLevel)
	}
	if d.RollingHistory < 0 {
		return fmt.Errorf("detector.rolling_history must be >= 0, got %d", d.RollingHistory)
	}
	if d.RefractoryMs <= 0 {
		return fmt.Errorf("detector.refractory_ms must be positive, got %d", d.RefractoryMs)
	}
	if d.SpectralThreshold <= 0 {
		return fmt.Errorf("detector.spectral_threshold must be positive, got %g", d.SpectralThreshold)
	}
	if d.SpectralSensitivity <= 0 {
		return fmt.Errorf("detector.spectral_sensitivity must be positive, got %g", d.SpectralSensitivity)
	}

	tm := &c.Tempo
	if tm.HistorySize <= 0 {
		return fmt.Errorf("tempo.history_size must be positive, got %d", tm.HistorySize)
	}
	if tm.MinBpm <= 0 {
		return fmt.Errorf("tempo.min_bpm must be positive, got %d", tm.MinBpm)
	}
	if tm.MinBpm >= tm.MaxBpm {
		return fmt.Errorf("tempo range [%d, %d] requires min < max", tm.MinBpm, tm.MaxBpm)
	}
	if tm.LockThreshold <= 0 {
		return fmt.Errorf("tempo.lock_threshold must be positive, got %d", tm.LockThreshold)
	}
	if tm.TolerancePercent <= 0 {
		return fmt.Errorf("tempo.tolerance_percent must be positive, got %g", tm.TolerancePercent)
	}
	if tm.ChangeThresholdBpm <= 0 {
		return fmt.Errorf("tempo.change_threshold_bpm must be positive, got %d", tm.ChangeThresholdBpm)
	}

	if c.Pulse.DurationMs <= 0 {
		return fmt.Errorf("pulse.duration_ms must be positive, got %d", c.Pulse.DurationMs)
	}

	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" {
			return fmt.Errorf("recording.output_dir must be set when recording is enabled")
		}
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 && c.Recording.BitDepth != 32 {
			return fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
		}
	}

	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
	}
	if (c.Transport.UDPEnabled || c.Transport.WebSocketEnabled) && c.Transport.SendInterval <= 0 {
		return fmt.Errorf("transport.send_interval must be positive, got %s", c.Transport.SendInterval)
	}

	return nil
}

// BaselineFrames returns the rolling baseline window in frames. A zero
// configured value derives a window spanning roughly one second of audio.
func (c *Config) BaselineFrames() int {
	if c.Detector.RollingHistory > 0 {
		return c.Detector.RollingHistory
	}
	w := int(c.Audio.SampleRate) / c.Audio.FramesPerBuffer
	if w < 1 {
		w = 1
	}
	return w
}
