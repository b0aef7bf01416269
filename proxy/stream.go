package proxy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
)

// signalBuffer is how many undelivered signals a stream holds before the
// bus connection blocks on it.
const signalBuffer = 64

// Stream is a pull-based subscription to one signal of one interface,
// optionally limited to a single object path. Signals that cannot be
// decoded are reported by Next as errors wrapping common.ErrDecode and
// the stream stays usable.
//
// A Stream must be closed to release its match rule.
type Stream[T any] struct {
	conn   Conn
	ch     chan *dbus.Signal
	match  []dbus.MatchOption
	name   string
	path   dbus.ObjectPath
	decode func(*dbus.Signal) (T, error)

	closeOnce sync.Once
	done      chan struct{}
}

// subscribe registers a match rule for iface.member and starts receiving.
// An empty path matches every object.
func subscribe[T any](conn Conn, service string, path dbus.ObjectPath, iface, member string,
	decode func(*dbus.Signal) (T, error)) (*Stream[T], error) {

	match := []dbus.MatchOption{
		dbus.WithMatchSender(service),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if path != "" {
		match = append(match, dbus.WithMatchObjectPath(path))
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("subscribe to %s.%s: %w", iface, member, err)
	}

	s := &Stream[T]{
		conn:   conn,
		ch:     make(chan *dbus.Signal, signalBuffer),
		match:  match,
		name:   iface + "." + member,
		path:   path,
		decode: decode,
		done:   make(chan struct{}),
	}
	conn.Signal(s.ch)
	return s, nil
}

// Next blocks until the next matching signal arrives, ctx is done, or
// the stream is closed.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.done:
			return zero, common.ErrStreamClosed
		case sig, ok := <-s.ch:
			if !ok {
				// the connection went away
				return zero, common.ErrStreamClosed
			}
			if sig.Name != s.name || (s.path != "" && sig.Path != s.path) {
				continue
			}
			v, err := s.decode(sig)
			if err != nil {
				return zero, fmt.Errorf("%s from %s: %w", s.name, sig.Path, err)
			}
			return v, nil
		}
	}
}

// All yields signals until ctx is done or the stream is closed. Decode
// errors are yielded and iteration continues; any other error ends it.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil && !errors.Is(err, common.ErrDecode) {
				if !errors.Is(err, common.ErrStreamClosed) {
					yield(v, err)
				}
				return
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// Close unsubscribes. It is safe to call more than once.
func (s *Stream[T]) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.RemoveSignal(s.ch)
		err = s.conn.RemoveMatchSignal(s.match...)
	})
	return err
}
