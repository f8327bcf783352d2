package profiles

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/openlact/lactd/internal/log"
)

// PollingConnector diffs the process table on an interval using
// gopsutil, as a non-root fallback when the netlink proc connector
// socket can't be opened (spec.md §4.6: process lifecycle tracking
// with a polling fallback for sandboxed/non-privileged hosts).
type PollingConnector struct {
	interval time.Duration
	stop     chan struct{}
}

// NewPollingConnector builds a fallback connector polling every interval.
func NewPollingConnector(interval time.Duration) *PollingConnector {
	return &PollingConnector{interval: interval, stop: make(chan struct{})}
}

// Run polls the process table, diffing against the previous snapshot
// to synthesize exec/exit events, until Close is called.
func (c *PollingConnector) Run(ch chan<- Event) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	seen := map[PID]struct{}{}

	for {
		select {
		case <-c.stop:
			return nil
		case <-ticker.C:
			pids, err := process.Pids()
			if err != nil {
				log.Logger.Warnw("polling connector failed to list processes", "error", err)
				continue
			}

			current := make(map[PID]struct{}, len(pids))
			for _, p := range pids {
				pid := PID(p)
				current[pid] = struct{}{}
				if _, ok := seen[pid]; !ok {
					ch <- Event{PID: pid}
				}
			}
			for pid := range seen {
				if _, ok := current[pid]; !ok {
					ch <- Event{PID: pid, Exit: true}
				}
			}
			seen = current
		}
	}
}

// Close stops the polling loop.
func (c *PollingConnector) Close() error {
	close(c.stop)
	return nil
}
