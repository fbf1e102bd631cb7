// Package engine provides the heartbeat loop and the scheduler that decides
// what goes on air.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = time.Second

// TickSource delivers heartbeats.
type TickSource interface {
	OnTick(fn func())
}

// Ticker is the wall-clock TickSource.
type Ticker struct {
	Interval time.Duration

	mu    sync.Mutex
	fns   []func()
	count atomic.Uint64
}

// NewTicker creates a ticker. A non-positive interval uses DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{Interval: interval}
}

// OnTick registers fn to run on every heartbeat.
func (t *Ticker) OnTick(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fns = append(t.fns, fn)
}

// Count is the number of heartbeats delivered so far.
func (t *Ticker) Count() uint64 { return t.count.Load() }

// Run delivers heartbeats until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	tk := time.NewTicker(t.Interval)
	defer tk.Stop()

	slog.Info("heartbeat started", "interval", t.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("heartbeat stopped", "ticks", t.Count())
			return
		case <-tk.C:
			t.step()
		}
	}
}

// step delivers one heartbeat. Callbacks run synchronously.
func (t *Ticker) step() {
	t.count.Add(1)
	t.mu.Lock()
	fns := append([]func(){}, t.fns...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
