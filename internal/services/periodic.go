package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RepeatedTask runs a function on a fixed interval until stopped
type RepeatedTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewRepeatedTask creates a task; call Start to run it
func NewRepeatedTask(name string, interval time.Duration, fn func(ctx context.Context)) *RepeatedTask {
	return &RepeatedTask{name: name, interval: interval, fn: fn}
}

// Start runs fn once immediately and then every interval. Calling Start
// on a running task does nothing.
func (t *RepeatedTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		log.Info().Str("task", t.name).Dur("interval", t.interval).Msg("Periodic task started")
		t.fn(ctx)
		for {
			select {
			case <-ticker.C:
				t.fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(t.done)
}

// Stop cancels the task and waits for the current run to return
func (t *RepeatedTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Str("task", t.name).Msg("Periodic task stopped")
}
