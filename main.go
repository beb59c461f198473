// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"beatpulse/cmd"
	"beatpulse/internal/audio"
	"beatpulse/internal/config"
	applog "beatpulse/internal/log"
	"beatpulse/internal/pipeline"
	"beatpulse/internal/transport"
	"beatpulse/internal/transport/udp"
	"beatpulse/pkg/build"
)

// main wires the engine together in three phases:
//
//  1. Startup (cold path): build info, runtime tuning, PortAudio init,
//     argument parsing, one-off commands.
//  2. Concurrent (hot path): the capture stream feeds the processing
//     goroutine; transports broadcast the published state.
//  3. Shutdown (cold path): signal-driven teardown, with the pipeline
//     stopped before the transports so no stale state is published.
func main() {
	// ==================== STARTUP PHASE ====================

	build.Initialize()

	// One OS thread for the audio callback and processing loop, one for
	// transports and I/O.
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	if cfg.Command == "list" {
		if err := audio.ListDevices(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}
	if !cfg.Run {
		return // help/version path
	}

	// ==================== CONCURRENT PHASE ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	capture := audio.NewCapture(cfg)
	pipe, err := pipeline.New(cfg, capture)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Recording.Enabled {
		rec, err := audio.NewRecorder(cfg.Recording.OutputDir,
			cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer, cfg.Recording.BitDepth)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		defer rec.Close()
		pipe.SetSink(rec)
	}

	broadcaster, err := buildBroadcaster(cfg, pipe)
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if broadcaster != nil {
		broadcaster.Start()
	}

	if err := pipe.Start(); err != nil {
		applog.Fatalf("%v", err)
	}

	fmt.Printf("%s running. '%s --help' for usage information.\n",
		build.GetBuildFlags().Name, build.GetBuildFlags().Name)

	<-done

	// ==================== SHUTDOWN PHASE ====================

	if err := pipe.Stop(); err != nil {
		applog.Errorf("error stopping pipeline: %v", err)
	}
	if broadcaster != nil {
		if err := broadcaster.Close(); err != nil {
			applog.Errorf("error closing transports: %v", err)
		}
	}
}

// buildBroadcaster assembles the configured transports, or returns nil
// when none are enabled.
func buildBroadcaster(cfg *config.Config, pipe *pipeline.Pipeline) (*transport.Broadcaster, error) {
	var transports []transport.Transport

	if cfg.Transport.WebSocketEnabled {
		transports = append(transports,
			transport.NewWebSocketTransport(cfg.Transport.WebSocketPort, cfg.Transport.SendInterval))
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		transports = append(transports, udp.NewPacker(sender))
	}

	if len(transports) == 0 {
		return nil, nil
	}
	return transport.NewBroadcaster(pipe.Publisher(), cfg.Transport.SendInterval, transports...), nil
}
