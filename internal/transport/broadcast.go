// SPDX-License-Identifier: MIT
package transport

import (
	"sync"
	"time"

	applog "beatpulse/internal/log"
	"beatpulse/internal/pulse"
)

// Broadcaster periodically samples the published state and fans each
// snapshot out to the configured transports. It runs in its own
// goroutine, managed by Start and Stop.
type Broadcaster struct {
	pub        *pulse.Publisher
	transports []Transport
	interval   time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan across Start/Stop
}

// NewBroadcaster creates a broadcaster sampling pub at the given
// interval. An interval <= 0 defaults to ~30Hz.
func NewBroadcaster(pub *pulse.Publisher, interval time.Duration, transports ...Transport) *Broadcaster {
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("broadcaster: invalid interval, defaulting to %s", interval)
	}
	return &Broadcaster{
		pub:        pub,
		transports: transports,
		interval:   interval,
	}
}

// Start launches the broadcast goroutine. Calling Start on a running
// broadcaster is a no-op.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	if b.ticker != nil {
		b.mu.Unlock()
		applog.Warnf("broadcaster: start called while already running")
		return
	}

	b.ticker = time.NewTicker(b.interval)
	b.doneChan = make(chan struct{})
	b.stopOnce = sync.Once{}

	ticker := b.ticker
	doneChan := b.doneChan
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ticker.C:
				b.broadcast()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the broadcast goroutine and waits for it to exit.
// Idempotent.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.ticker == nil {
		b.mu.Unlock()
		return
	}
	b.stopOnce.Do(func() {
		close(b.doneChan)
		b.ticker.Stop()
		b.ticker = nil
	})
	b.mu.Unlock()

	b.wg.Wait()
}

// Close stops the broadcaster and closes every transport.
func (b *Broadcaster) Close() error {
	b.Stop()

	var err error
	for _, t := range b.transports {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// broadcast sends the current snapshot to every transport.
func (b *Broadcaster) broadcast() {
	state := b.pub.Snapshot()
	for _, t := range b.transports {
		if err := t.Send(state); err != nil {
			applog.Errorf("broadcaster: send failed: %v", err)
		}
	}
}
