// Package daemon holds the process-level signal handling shared by the
// run command: SIGTERM/SIGINT trigger an orderly stop, SIGUSR1 dumps
// goroutine stacks for debugging a stuck daemon, SIGPIPE is ignored so
// a client disconnecting mid-write never kills the process.
package daemon

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"golang.org/x/sys/unix"

	"github.com/openlact/lactd/internal/log"
)

// ServerStopper is anything HandleSignals can gracefully stop once a
// termination signal arrives. rpc.Server and metrics.Server both close
// their listeners on context cancellation already, so in practice this
// is a thin Stop hook for anything that needs one more explicit nudge.
type ServerStopper interface {
	Stop()
}

// DefaultSignalsToHandle is passed to signal.Notify by the run command.
var DefaultSignalsToHandle = []os.Signal{
	unix.SIGTERM,
	unix.SIGINT,
	unix.SIGPIPE,
	unix.SIGUSR1,
}

// HandleSignals runs in its own goroutine, consuming signals as they
// arrive on signals until a terminating one (SIGTERM/SIGINT) shows up.
// It then invokes notifyStopping, stops the server received on serverC
// (if any has arrived yet), cancels cancel, and closes the returned
// channel. serverC is read non-blockingly on each iteration so the
// handler can start accepting signals before the server is constructed
// without missing a termination signal received during boot.
func HandleSignals(ctx context.Context, cancel context.CancelFunc, signals chan os.Signal, serverC chan ServerStopper, notifyStopping func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	var srv ServerStopper

	go func() {
		defer close(done)
		for {
			select {
			case s := <-serverC:
				srv = s
			case sig := <-signals:
				switch sig {
				case unix.SIGPIPE:
					log.Logger.Debugw("ignoring SIGPIPE")
				case unix.SIGUSR1:
					dumpStacks(fmt.Sprintf("%s/lactd.%d.stacks.log", os.TempDir(), os.Getpid()))
				case unix.SIGTERM, unix.SIGINT:
					log.Logger.Infow("received termination signal, shutting down", "signal", sig)
					if err := notifyStopping(ctx); err != nil {
						log.Logger.Warnw("notify stopping failed", "error", err)
					}
					if srv != nil {
						srv.Stop()
					}
					cancel()
					return
				default:
					log.Logger.Debugw("ignoring unhandled signal", "signal", sig)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return done
}

// dumpStacks writes every goroutine's stack trace to path, best-effort:
// a failure to create the file is logged and otherwise ignored since
// this only ever runs in response to an operator's SIGUSR1 for
// debugging, never on a required path.
func dumpStacks(path string) {
	f, err := os.Create(path)
	if err != nil {
		log.Logger.Warnw("failed to create stack dump file", "path", path, "error", err)
		return
	}
	defer f.Close()

	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		fmt.Fprintf(f, "failed to write goroutine profile: %v\n", err)
	}
	fmt.Fprintf(f, "\n--- numgoroutine: %d ---\n", runtime.NumGoroutine())
}
