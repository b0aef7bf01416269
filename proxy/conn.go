package proxy

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Object is the part of a remote object handle the stubs use. A
// dbus.BusObject satisfies it.
type Object interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	Path() dbus.ObjectPath
}

// Conn is an owned connection to the message bus. The stubs only talk to
// the daemon through this interface, so tests can substitute an
// in-memory bus (see package proxytest).
type Conn interface {
	Object(dest string, path dbus.ObjectPath) Object
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// Bus selects which message bus to connect to.
type Bus int

const (
	SystemBus Bus = iota
	SessionBus
)

// String returns the configuration name of the bus.
func (b Bus) String() string {
	switch b {
	case SystemBus:
		return "system"
	case SessionBus:
		return "session"
	default:
		return "unknown"
	}
}

// ParseBus maps "system" or "session" to a Bus.
func ParseBus(s string) (Bus, error) {
	switch s {
	case "", "system":
		return SystemBus, nil
	case "session":
		return SessionBus, nil
	default:
		return SystemBus, fmt.Errorf("unknown bus %q", s)
	}
}

type busConn struct {
	*dbus.Conn
}

func (c busConn) Object(dest string, path dbus.ObjectPath) Object {
	return c.Conn.Object(dest, path)
}

// Wrap adapts a godbus connection. The returned Conn owns c and closes it
// on Close.
func Wrap(c *dbus.Conn) Conn {
	return busConn{Conn: c}
}

// Connect opens a private connection to the selected bus. The daemon
// lives on the system bus; the session bus is useful for development
// setups.
func Connect(bus Bus) (Conn, error) {
	var (
		c   *dbus.Conn
		err error
	)
	switch bus {
	case SessionBus:
		c, err = dbus.ConnectSessionBus()
	default:
		c, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", bus, err)
	}
	return Wrap(c), nil
}
