package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	reconnectInitialBackoff = 1 * time.Second
	reconnectMaxBackoff     = 30 * time.Second
)

// Reconnector drives the voice-channel reconnect loop (§4.10 failure
// semantics: "Systemic failures (voice channel disconnect) trigger
// reconnect with exponential backoff"). It wraps a join function supplied
// by the caller so it stays agnostic to the concrete platform adapter.
//
// Reconnector is safe for concurrent use.
type Reconnector struct {
	join        func(ctx context.Context) error
	onReconnect func()

	mu       sync.Mutex
	stopped  bool
	disconnect chan struct{}
}

// NewReconnector constructs a [Reconnector]. join is called to (re)establish
// the voice connection; onReconnect, if non-nil, runs after every successful
// reconnect so the caller can clear stale per-speaker state (segmenter
// buffers, barge-in timers) per the spec's reconnect contract.
func NewReconnector(join func(ctx context.Context) error, onReconnect func()) *Reconnector {
	return &Reconnector{
		join:       join,
		onReconnect: onReconnect,
		disconnect: make(chan struct{}, 1),
	}
}

// Connect performs the initial join.
func (r *Reconnector) Connect(ctx context.Context) error {
	return r.join(ctx)
}

// NotifyDisconnect signals the monitor loop that the connection was lost.
// Safe to call multiple times; extra signals while a reconnect is already
// in flight are dropped.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnect <- struct{}{}:
	default:
	}
}

// Stop halts the monitor loop.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// Monitor runs the reconnect loop until ctx is cancelled or Stop is called.
// On each disconnect signal it retries join with exponential backoff,
// doubling from reconnectInitialBackoff up to reconnectMaxBackoff, until
// join succeeds or the loop is stopped.
func (r *Reconnector) Monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.disconnect:
		}

		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}

		r.reconnectLoop(ctx)
	}
}

func (r *Reconnector) reconnectLoop(ctx context.Context) {
	backoff := reconnectInitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}

		if err := r.join(ctx); err != nil {
			slog.Warn("app: voice channel reconnect attempt failed", "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
			continue
		}

		slog.Info("app: voice channel reconnected", "attempt", attempt)
		if r.onReconnect != nil {
			r.onReconnect()
		}
		return
	}
}
