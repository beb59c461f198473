// SPDX-License-Identifier: MIT
/*
Package pulse publishes the engine's observable state: the beat pulse,
the input level, the stabilized BPM, and the running flag.

Thread Safety:
- The processing goroutine is the only writer; a mutex serializes its
  updates with the pulse-off timer callback.
- Readers load an immutable snapshot through an atomic pointer, so a
  reader never blocks and never observes a torn value.
*/
package pulse

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is one immutable snapshot of everything an observer can see.
// Values are last-write-wins; there is no history.
type State struct {
	PulseActive bool    `json:"pulse"`
	Level       float64 `json:"level"`
	BPM         int     `json:"bpm"`
	Running     bool    `json:"running"`
}

// Publisher owns the published state and the pulse-off timer. Each
// accepted beat turns the pulse on and (re)arms a delayed off switch;
// Reset cancels the timer so no toggle fires after teardown.
type Publisher struct {
	mu       sync.Mutex
	cur      atomic.Pointer[State]
	duration time.Duration
	timer    *time.Timer
	subs     []chan State
}

// NewPublisher creates a publisher with the given pulse on-time. The
// initial snapshot is the all-zero state.
func NewPublisher(pulseDuration time.Duration) *Publisher {
	p := &Publisher{duration: pulseDuration}
	p.cur.Store(&State{})
	return p
}

// Snapshot returns the current state. Safe from any goroutine, never
// blocks.
func (p *Publisher) Snapshot() State {
	return *p.cur.Load()
}

// Subscribe returns a channel receiving a snapshot after every update.
// Notifications are best-effort: a slow subscriber misses intermediate
// snapshots rather than stalling the processing goroutine.
func (p *Publisher) Subscribe(buffer int) <-chan State {
	ch := make(chan State, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Beat turns the pulse on and restarts the pulse-off timer. Beats landing
// inside an active pulse extend it rather than producing a gap.
func (p *Publisher) Beat() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.update(func(s *State) { s.PulseActive = true })
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.duration, p.pulseOff)
}

// pulseOff is the timer callback. After a Reset it may still fire once,
// but it only ever clears the pulse flag, which Reset already cleared.
func (p *Publisher) pulseOff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(func(s *State) { s.PulseActive = false })
}

// SetLevel publishes the latest input level.
func (p *Publisher) SetLevel(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(func(s *State) { s.Level = level })
}

// SetBPM publishes the latest displayed tempo.
func (p *Publisher) SetBPM(bpm int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(func(s *State) { s.BPM = bpm })
}

// SetRunning publishes the running flag.
func (p *Publisher) SetRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(func(s *State) { s.Running = running })
}

// Reset cancels any pending pulse-off timer and restores the all-zero
// state. Called on pipeline stop.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.update(func(s *State) { *s = State{} })
}

// update applies fn to a copy of the current snapshot, stores it, and
// notifies subscribers without blocking. Callers hold p.mu.
func (p *Publisher) update(fn func(*State)) {
	next := *p.cur.Load()
	fn(&next)
	p.cur.Store(&next)

	for _, ch := range p.subs {
		select {
		case ch <- next:
		default:
		}
	}
}
