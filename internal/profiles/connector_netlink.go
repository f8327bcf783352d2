package profiles

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Linux's proc connector (documented in <linux/cn_proc.h>, not wrapped
// by any example in the pack) multiplexes process lifecycle events over
// NETLINK_CONNECTOR. These constants and offsets come directly from
// that header rather than any Go library, since nothing in the corpus
// talks to this protocol; mdlayher/netlink (already pulled in for the
// uevent listener, spec.md §4.7) supplies the raw socket.
const (
	cnIdxProc = 0x1
	cnValProc = 0x1

	procCnMcastListen = 1

	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventExit = 0x80000000
)

// cnMsgHeaderLen is sizeof(struct cn_msg) without its trailing data:
// cb_id{idx,val} (8) + seq (4) + ack (4) + len (2) + flags (2).
const cnMsgHeaderLen = 20

// Event is a process lifecycle event accepted by the watcher.
type Event struct {
	PID  PID
	Exit bool
}

// ProcessConnector streams process lifecycle events. NetlinkConnector
// is the primary implementation; PollingConnector (gopsutil based) is
// the non-root fallback when the netlink socket can't be opened.
type ProcessConnector interface {
	// Run blocks, sending events on ch, until the connector is closed or
	// its event source fails, and returns the error that ended it
	// (nil when a PollingConnector is closed).
	Run(ch chan<- Event) error
	Close() error
}

// NetlinkConnector listens for PROC_EVENT_EXEC/EXIT over the kernel
// proc connector (spec.md §4.6: "netlink proc connector on Linux").
type NetlinkConnector struct {
	conn *netlink.Conn
}

// NewNetlinkConnector opens a NETLINK_CONNECTOR socket and subscribes
// to the proc connector's multicast group. Requires CAP_NET_ADMIN.
func NewNetlinkConnector() (*NetlinkConnector, error) {
	conn, err := netlink.Dial(unix.NETLINK_CONNECTOR, &netlink.Config{Groups: cnIdxProc})
	if err != nil {
		return nil, fmt.Errorf("dialing proc connector: %w", err)
	}

	listenMsg := encodeCnMsg(1, 0, []byte{procCnMcastListen, 0, 0, 0})
	if _, err := conn.Send(netlink.Message{
		Header: netlink.Header{Type: unix.NLMSG_DONE, Flags: netlink.Request},
		Data:   listenMsg,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending proc connector listen request: %w", err)
	}

	return &NetlinkConnector{conn: conn}, nil
}

func encodeCnMsg(seq, ack uint32, payload []byte) []byte {
	buf := make([]byte, cnMsgHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], cnIdxProc)
	binary.LittleEndian.PutUint32(buf[4:8], cnValProc)
	binary.LittleEndian.PutUint32(buf[8:12], seq)
	binary.LittleEndian.PutUint32(buf[12:16], ack)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(payload)))
	binary.LittleEndian.PutUint16(buf[18:20], 0)
	copy(buf[cnMsgHeaderLen:], payload)
	return buf
}

// Run reads proc connector events until the underlying socket is closed.
func (c *NetlinkConnector) Run(ch chan<- Event) error {
	for {
		msgs, err := c.conn.Receive()
		if err != nil {
			return fmt.Errorf("receiving from proc connector: %w", err)
		}
		for _, m := range msgs {
			event, ok := decodeProcEvent(m.Data)
			if !ok {
				continue
			}
			ch <- event
		}
	}
}

// decodeProcEvent parses a cn_msg payload carrying a struct proc_event:
// what (4 bytes) + cpu (4) + timestamp_ns (8), then a union keyed by
// what. Only exec/exit are consumed; everything else (fork, uid change,
// comm change, coredump) is skipped.
func decodeProcEvent(data []byte) (Event, bool) {
	if len(data) < cnMsgHeaderLen+16 {
		return Event{}, false
	}
	body := data[cnMsgHeaderLen:]
	what := binary.LittleEndian.Uint32(body[0:4])

	const procEventHeaderLen = 16 // what + cpu + timestamp_ns
	switch what {
	case procEventExec:
		if len(body) < procEventHeaderLen+8 {
			return Event{}, false
		}
		pid := binary.LittleEndian.Uint32(body[procEventHeaderLen : procEventHeaderLen+4])
		return Event{PID: PID(pid)}, true
	case procEventExit:
		if len(body) < procEventHeaderLen+16 {
			return Event{}, false
		}
		pid := binary.LittleEndian.Uint32(body[procEventHeaderLen : procEventHeaderLen+4])
		return Event{PID: PID(pid), Exit: true}, true
	default:
		return Event{}, false
	}
}

// Close releases the underlying netlink socket.
func (c *NetlinkConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
