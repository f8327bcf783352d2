package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/openlact/lactd/internal/config"
	"github.com/openlact/lactd/internal/log"
)

// quiescenceWindow and ceilingWindow are the two-timer debounce bounds
// (spec.md §4.6): wait for 50ms of quiet after the last event, but
// never wait more than 500ms past the first event in a burst.
const (
	quiescenceWindow = 50 * time.Millisecond
	ceilingWindow    = 500 * time.Millisecond
)

// SwitchFunc applies a profile switch; the handler's SetProfile
// satisfies this (spec.md §4.6: "invokes the full apply pipeline for
// each device; the confirm watchdog is not used").
type SwitchFunc func(ctx context.Context, profileName string) error

// Watcher owns process/game-mode event ingestion, rule evaluation, and
// the debounce timer.
type Watcher struct {
	cfg        *config.Store
	switchFunc SwitchFunc

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	procConn ProcessConnector
	gamemode *GamemodeSource

	stateMu sync.Mutex
	state   *State
	current string
}

// NewWatcher builds a Watcher. procConn is typically a
// NetlinkConnector, falling back to a PollingConnector when netlink
// setup fails (privilege, kernel module, sandboxing).
func NewWatcher(store *config.Store, switchFunc SwitchFunc, procConn ProcessConnector) *Watcher {
	return &Watcher{
		cfg:        store,
		switchFunc: switchFunc,
		events:     make(chan Event, 128),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		procConn:   procConn,
		state:      NewState(),
	}
}

// Start seeds the process table, connects game mode if available, and
// begins the debounced evaluation loop. It returns once setup is
// complete; the loop itself runs in a background goroutine until Stop.
func (w *Watcher) Start(ctx context.Context) {
	if gm, ok := ConnectGamemode(); ok {
		w.gamemode = gm
		if pids, err := gm.ListGames(); err == nil {
			w.stateMu.Lock()
			for _, pid := range pids {
				w.state.SetGamemode(pid, true)
			}
			w.stateMu.Unlock()
		}
		go func() {
			if err := gm.Run(w.events); err != nil {
				log.Logger.Warnw("gamemode event stream ended", "error", err)
			}
		}()
	}

	go func() {
		if err := w.procConn.Run(w.events); err != nil {
			log.Logger.Errorw("process connector stopped", "error", err)
		}
	}()

	go w.loop(ctx)
}

// Stop closes the event source and waits for the loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	if w.procConn != nil {
		w.procConn.Close()
	}
	if w.gamemode != nil {
		w.gamemode.Close()
	}
	<-w.done
}

// loop implements the two-timer debounce (spec.md §4.6): after an
// event, wait quiescenceWindow for silence, resetting on every new
// event, but force evaluation once ceilingWindow has elapsed since the
// first event of the current burst regardless.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	w.evaluate(ctx)

	var quiescence *time.Timer
	var ceiling *time.Timer
	var quiescenceC, ceilingC <-chan time.Time

	resetBurst := func() {
		if quiescence != nil {
			quiescence.Stop()
		}
		if ceiling != nil {
			ceiling.Stop()
		}
		quiescence = time.NewTimer(quiescenceWindow)
		ceiling = time.NewTimer(ceilingWindow)
		quiescenceC = quiescence.C
		ceilingC = ceiling.C
	}

	burstActive := false

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			w.apply(ev)
			if !burstActive {
				burstActive = true
				resetBurst()
			} else {
				if quiescence != nil {
					quiescence.Stop()
				}
				quiescence = time.NewTimer(quiescenceWindow)
				quiescenceC = quiescence.C
			}
		case <-quiescenceC:
			burstActive = false
			quiescenceC = nil
			ceilingC = nil
			w.evaluate(ctx)
		case <-ceilingC:
			burstActive = false
			quiescenceC = nil
			ceilingC = nil
			w.evaluate(ctx)
		}
	}
}

func (w *Watcher) apply(ev Event) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	if ev.Exit {
		w.state.Remove(ev.PID)
		w.state.SetGamemode(ev.PID, false)
		return
	}
	w.state.Upsert(ev.PID, readProcessInfo(ev.PID))
}

// Snapshot returns a point-in-time copy of the watcher's process state,
// safe to read from another goroutine (e.g. the handler's
// evaluate_profile_rule RPC) while the watcher loop keeps mutating its
// own copy.
func (w *Watcher) Snapshot() *State {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	out := NewState()
	for pid, info := range w.state.ProcessList {
		out.Upsert(pid, info)
	}
	for pid := range w.state.GamemodePids {
		out.SetGamemode(pid, true)
	}
	return out
}

func (w *Watcher) evaluate(ctx context.Context) {
	cfg, err := w.cfg.Load()
	if err != nil {
		log.Logger.Errorw("profile watcher failed to load config", "error", err)
		return
	}

	next := Evaluate(w.Snapshot(), cfg.ProfileOrder, cfg.Profiles)
	if next == w.current {
		return
	}
	w.current = next

	if next != "" {
		log.Logger.Infow("profile watcher switching profile", "profile", next)
	} else {
		log.Logger.Infow("profile watcher switching to default configuration")
	}
	if err := w.switchFunc(ctx, next); err != nil {
		log.Logger.Errorw("profile watcher failed to apply profile switch", "profile", next, "error", err)
	}
}
