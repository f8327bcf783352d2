// Package uevent listens for kernel uevent broadcasts (spec.md §4.7)
// and signals a single-shot notifier whenever a drm subsystem event
// arrives, so the daemon can re-apply its current configuration after
// a driver-side reset (a GPU hang-and-recover, a hot reload of the
// module). It is grounded on internal/profiles's NETLINK_CONNECTOR
// proc connector: both are raw generic-netlink consumers built on
// mdlayher/netlink and golang.org/x/sys/unix, since neither protocol is
// wrapped by any library in the corpus.
package uevent

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Listener subscribes to NETLINK_KOBJECT_UEVENT broadcasts bound to
// the current process, filtering for the drm subsystem.
type Listener struct {
	conn *netlink.Conn
}

// New opens a NETLINK_KOBJECT_UEVENT socket bound to the current PID
// (spec.md §4.7: "bound to the current PID"), joining the kernel
// multicast group every uevent is broadcast on.
func New() (*Listener, error) {
	conn, err := netlink.Dial(unix.NETLINK_KOBJECT_UEVENT, &netlink.Config{Groups: 1})
	if err != nil {
		return nil, fmt.Errorf("dialing kobject-uevent netlink socket: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// Close releases the underlying netlink socket.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

// Run blocks, reading uevent messages until the socket is closed, and
// signals on drmEvents (non-blocking: a pending signal already covers
// any event that arrives before it's drained) whenever a message
// carries SUBSYSTEM=drm. drmEvents should be buffered with capacity 1
// so Run never blocks waiting for a reader (spec.md §4.7: "a
// single-shot notifier is signaled").
func (l *Listener) Run(drmEvents chan<- struct{}) error {
	for {
		msgs, err := l.conn.Receive()
		if err != nil {
			return fmt.Errorf("receiving from kobject-uevent netlink socket: %w", err)
		}
		for _, m := range msgs {
			if !isDrmEvent(m.Data) {
				continue
			}
			select {
			case drmEvents <- struct{}{}:
			default:
			}
		}
	}
}

// isDrmEvent reports whether a raw uevent payload carries
// SUBSYSTEM=drm among its null-terminated KEY=VALUE fields (spec.md
// §4.7: "Messages are null-terminated key=value sequences").
//
// The kernel also prefixes the payload with a header line of the form
// "<action>@<devpath>\0" before the key=value fields; that line is
// skipped over here since it never itself equals SUBSYSTEM=drm.
func isDrmEvent(data []byte) bool {
	for _, field := range bytes.Split(data, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		if s := string(field); strings.HasPrefix(s, "SUBSYSTEM=") {
			return strings.TrimPrefix(s, "SUBSYSTEM=") == "drm"
		}
	}
	return false
}
