package profiles

import (
	"github.com/godbus/dbus/v5"

	"github.com/openlact/lactd/internal/log"
)

// Feral Interactive's GameMode daemon (https://github.com/FeralInteractive/gamemode)
// exposes a session D-Bus service that register/unregister signals key
// on PID whenever an application enters or leaves game mode. Not
// described by spec.md's prose beyond "an external D-Bus-style
// endpoint"; the exact names below are GameMode's own published D-Bus
// interface.
const (
	gamemodeBusName    = "com.feralinteractive.GameMode"
	gamemodeObjectPath = "/com/feralinteractive/GameMode"
	gamemodeIface      = "com.feralinteractive.GameMode"
)

// GamemodeSource streams register/unregister events from the GameMode
// D-Bus daemon. It degrades to doing nothing if GameMode isn't running
// (spec.md §4.6: "optional; if absent the feature degrades to
// process-only rules").
type GamemodeSource struct {
	conn *dbus.Conn
}

// ConnectGamemode attempts to reach a running GameMode daemon on the
// session bus. Returns ok=false (no error) if GameMode isn't present —
// this is the expected case on most systems, not a failure.
func ConnectGamemode() (src *GamemodeSource, ok bool) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		log.Logger.Debugw("no session bus available, gamemode rules disabled", "error", err)
		return nil, false
	}

	var owner string
	if err := conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, gamemodeBusName).Store(&owner); err != nil {
		conn.Close()
		return nil, false
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(gamemodeObjectPath),
		dbus.WithMatchInterface(gamemodeIface),
	); err != nil {
		conn.Close()
		log.Logger.Warnw("failed to subscribe to gamemode signals", "error", err)
		return nil, false
	}

	return &GamemodeSource{conn: conn}, true
}

// ListGames returns the PIDs GameMode currently considers active, for
// seeding watcher state at startup.
func (g *GamemodeSource) ListGames() ([]PID, error) {
	obj := g.conn.Object(gamemodeBusName, dbus.ObjectPath(gamemodeObjectPath))
	var raw [][]interface{}
	if err := obj.Call(gamemodeIface+".ListGames", 0).Store(&raw); err != nil {
		return nil, err
	}
	out := make([]PID, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 0 {
			continue
		}
		if pid, ok := entry[0].(int32); ok {
			out = append(out, PID(pid))
		}
	}
	return out, nil
}

// Run forwards GameRegistered/GameUnregistered signals as Events until
// the connection is closed.
func (g *GamemodeSource) Run(ch chan<- Event) error {
	signals := make(chan *dbus.Signal, 16)
	g.conn.Signal(signals)

	for sig := range signals {
		switch sig.Name {
		case gamemodeIface + ".GameRegistered":
			if pid, ok := firstPidArg(sig.Body); ok {
				ch <- Event{PID: pid}
			}
		case gamemodeIface + ".GameUnregistered":
			if pid, ok := firstPidArg(sig.Body); ok {
				ch <- Event{PID: pid, Exit: true}
			}
		}
	}
	return nil
}

func firstPidArg(body []interface{}) (PID, bool) {
	if len(body) == 0 {
		return 0, false
	}
	pid, ok := body[0].(int32)
	if !ok {
		return 0, false
	}
	return PID(pid), true
}

// Close releases the D-Bus connection.
func (g *GamemodeSource) Close() error {
	return g.conn.Close()
}
