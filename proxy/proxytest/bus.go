// Package proxytest provides an in-memory stand-in for the OpenVPN 3
// daemon's bus objects, in the spirit of net/http/httptest.
//
// A Bus answers method calls with registered handlers, serves
// properties from a table, records every call, and delivers signals
// emitted by the test to subscribed streams.
package proxytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/proxy"
)

// Handler answers one method call. The returned values become the reply
// body. Use wire shapes: []interface{} for structs, map[string]dbus.Variant
// for a{sv} dictionaries.
type Handler func(args []interface{}) ([]interface{}, error)

// Call is a recorded method call.
type Call struct {
	Path   dbus.ObjectPath
	Method string
	Args   []interface{}
}

type propKey struct {
	path dbus.ObjectPath
	name string
}

type methodKey struct {
	path   dbus.ObjectPath
	method string
}

// Bus implements proxy.Conn.
type Bus struct {
	mu       sync.RWMutex
	handlers map[methodKey]Handler
	props    map[propKey]interface{}
	calls    []Call
	matches  int
	signals  []chan<- *dbus.Signal
	closed   bool
}

var _ proxy.Conn = (*Bus)(nil)

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[methodKey]Handler),
		props:    make(map[propKey]interface{}),
	}
}

// Error builds the error a remote method failure arrives as.
func Error(name, message string) error {
	return dbus.Error{Name: name, Body: []interface{}{message}}
}

// Handle registers h for method (interface-qualified, as in
// "net.openvpn.v3.sessions.Ready") on the object at path.
func (b *Bus) Handle(path dbus.ObjectPath, method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[methodKey{path, method}] = h
}

// Reply registers a handler that always returns values.
func (b *Bus) Reply(path dbus.ObjectPath, method string, values ...interface{}) {
	b.Handle(path, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// SetProperty stores a property value served by Properties.Get. The
// interface name is not part of the key; one object implements one
// interface.
func (b *Bus) SetProperty(path dbus.ObjectPath, name string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[propKey{path, name}] = value
}

// Property returns the stored value of a property.
func (b *Bus) Property(path dbus.ObjectPath, name string) (interface{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.props[propKey{path, name}]
	return v, ok
}

// Calls returns the recorded calls to method on any object, in order.
// An empty method returns every call.
func (b *Bus) Calls(method string) []Call {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Call
	for _, c := range b.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Matches returns the number of match rules currently installed.
func (b *Bus) Matches() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.matches
}

// Emit delivers a signal to every registered channel. Name must be the
// interface-qualified member, as on a real bus.
func (b *Bus) Emit(path dbus.ObjectPath, name string, body ...interface{}) {
	sig := &dbus.Signal{Sender: ":1.1", Path: path, Name: name, Body: body}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.signals {
		ch <- sig
	}
}

func (b *Bus) Object(dest string, path dbus.ObjectPath) proxy.Object {
	return &object{bus: b, dest: dest, path: path}
}

func (b *Bus) AddMatchSignal(...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches++
	return nil
}

func (b *Bus) RemoveMatchSignal(...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches--
	return nil
}

func (b *Bus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.signals = append(b.signals, ch)
}

func (b *Bus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.signals) - 1; i >= 0; i-- {
		if b.signals[i] == ch {
			b.signals = append(b.signals[:i], b.signals[i+1:]...)
		}
	}
}

// Close closes every registered signal channel, as a real connection
// does when it terminates.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.signals {
		close(ch)
	}
	b.signals = nil
	return nil
}

func (b *Bus) dispatch(path dbus.ObjectPath, method string, args []interface{}) ([]interface{}, error) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Path: path, Method: method, Args: args})
	h, ok := b.handlers[methodKey{path, method}]
	b.mu.Unlock()

	switch {
	case ok:
		return h(args)
	case method == "org.freedesktop.DBus.Properties.Get":
		return b.getProperty(path, args)
	case method == "org.freedesktop.DBus.Properties.Set":
		return nil, b.setProperty(path, args)
	}
	return nil, Error("org.freedesktop.DBus.Error.UnknownMethod",
		fmt.Sprintf("no method %s on %s", method, path))
}

func (b *Bus) getProperty(path dbus.ObjectPath, args []interface{}) ([]interface{}, error) {
	if len(args) != 2 {
		return nil, Error("org.freedesktop.DBus.Error.InvalidArgs", "Get takes interface and name")
	}
	name, _ := args[1].(string)
	v, ok := b.Property(path, name)
	if !ok {
		return nil, Error("org.freedesktop.DBus.Error.UnknownProperty",
			fmt.Sprintf("no property %s on %s", name, path))
	}
	variant, isVariant := v.(dbus.Variant)
	if !isVariant {
		variant = dbus.MakeVariant(v)
	}
	return []interface{}{variant}, nil
}

func (b *Bus) setProperty(path dbus.ObjectPath, args []interface{}) error {
	if len(args) != 3 {
		return Error("org.freedesktop.DBus.Error.InvalidArgs", "Set takes interface, name and value")
	}
	name, _ := args[1].(string)
	v, ok := args[2].(dbus.Variant)
	if !ok {
		return Error("org.freedesktop.DBus.Error.InvalidArgs", "value must be a variant")
	}
	if _, exists := b.Property(path, name); !exists {
		return Error("org.freedesktop.DBus.Error.UnknownProperty",
			fmt.Sprintf("no property %s on %s", name, path))
	}
	b.SetProperty(path, name, v.Value())
	return nil
}

type object struct {
	bus  *Bus
	dest string
	path dbus.ObjectPath
}

func (o *object) CallWithContext(ctx context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	call := &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
	}
	if err := ctx.Err(); err != nil {
		call.Err = err
		return call
	}
	call.Body, call.Err = o.bus.dispatch(o.path, method, args)
	return call
}

func (o *object) Path() dbus.ObjectPath {
	return o.path
}
