// Package watchdog implements the confirm/rollback cell (spec.md §4.4):
// a client-driven apply_config leaves the daemon in a provisional state
// until the client explicitly confirms it, guarding against a config
// change that leaves the display unreachable or the link dropped.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/log"
)

// Decision is how a pending apply is resolved.
type Decision int

const (
	// Confirm means the client explicitly accepted the change; the
	// caller should persist it as the new saved config.
	Confirm Decision = iota
	// Revert means the client asked to roll back, or never confirmed
	// before the timeout; the caller should re-apply the previous
	// config and must not persist the change.
	Revert
)

// RevertFunc re-applies the previous config. It is invoked by the
// watchdog itself on timeout or explicit revert, never by the caller.
type RevertFunc func(ctx context.Context) error

// Watchdog is a single-slot pending-confirmation cell (spec.md §4.4:
// "presence of a value in this cell means there is a pending config").
// Only one apply can be outstanding at a time across the whole daemon;
// a second attempt fails fast with ErrPendingConfirmation rather than
// compounding unconfirmed changes.
type Watchdog struct {
	mu      sync.Mutex
	pending *pendingEntry

	// timeout is the apply_settings_timer_seconds duration; clock is
	// injectable so tests don't need to sleep for the real timeout.
	timeout time.Duration
	clock   func() <-chan time.Time
}

type pendingEntry struct {
	decisions chan Decision
	done      chan struct{}
}

// New builds a Watchdog with the given confirm timeout.
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		clock:   func() <-chan time.Time { return time.After(timeout) },
	}
}

// Start records a successful client-driven apply as pending and arms
// the confirm timer. revert is called with the background context if
// the timer fires before Confirm or Revert is called, or if Revert is
// called explicitly. Start fails with ErrPendingConfirmation if another
// apply is already pending (spec.md §4.4).
func (w *Watchdog) Start(revert RevertFunc) error {
	w.mu.Lock()
	if w.pending != nil {
		w.mu.Unlock()
		return errdefs.ErrPendingConfirmation
	}
	entry := &pendingEntry{
		decisions: make(chan Decision, 1),
		done:      make(chan struct{}),
	}
	w.pending = entry
	w.mu.Unlock()

	go w.run(entry, revert)
	return nil
}

func (w *Watchdog) run(entry *pendingEntry, revert RevertFunc) {
	defer close(entry.done)

	var decision Decision
	select {
	case decision = <-entry.decisions:
	case <-w.clock():
		decision = Revert
		log.Logger.Warnw("pending config not confirmed in time, reverting")
	}

	w.mu.Lock()
	if w.pending == entry {
		w.pending = nil
	}
	w.mu.Unlock()

	if decision == Revert {
		if err := revert(context.Background()); err != nil {
			log.Logger.Errorw("failed to revert unconfirmed config", "error", err)
		}
	}
}

// Confirm resolves a pending apply as accepted. It returns
// ErrNotSupported (repurposed here as "nothing pending") if the cell is
// empty, so callers can distinguish a stale confirm from a real one.
func (w *Watchdog) Confirm() error {
	return w.resolve(Confirm)
}

// Revert resolves a pending apply by rolling it back immediately,
// without waiting for the timer.
func (w *Watchdog) Revert() error {
	return w.resolve(Revert)
}

func (w *Watchdog) resolve(d Decision) error {
	w.mu.Lock()
	entry := w.pending
	w.mu.Unlock()

	if entry == nil {
		return errdefs.NotSupportedf("no config change is pending confirmation")
	}
	select {
	case entry.decisions <- d:
	default:
		// Someone else already resolved this entry (timeout race); treat
		// as a no-op rather than blocking on a full channel.
	}
	return nil
}

// Pending reports whether a config change is currently awaiting confirmation.
func (w *Watchdog) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// Wait blocks until the currently pending entry (if any) has been
// resolved, for tests and for graceful shutdown draining.
func (w *Watchdog) Wait() {
	w.mu.Lock()
	entry := w.pending
	w.mu.Unlock()
	if entry == nil {
		return
	}
	<-entry.done
}
