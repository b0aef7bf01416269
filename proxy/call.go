package proxy

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	propertiesGet = "org.freedesktop.DBus.Properties.Get"
	propertiesSet = "org.freedesktop.DBus.Properties.Set"
)

// stub binds an object handle to the interface its methods live on.
type stub struct {
	obj   Object
	iface string
}

func newStub(conn Conn, service string, path dbus.ObjectPath, iface string) stub {
	return stub{obj: conn.Object(service, path), iface: iface}
}

func (s stub) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return s.obj.CallWithContext(ctx, s.iface+"."+method, 0, args...)
}

// invoke calls a method and discards its reply body.
func (s stub) invoke(ctx context.Context, method string, args ...interface{}) error {
	return s.call(ctx, method, args...).Err
}

// property reads a property into dest, unwrapping the variant.
func (s stub) property(ctx context.Context, name string, dest interface{}) error {
	err := s.obj.CallWithContext(ctx, propertiesGet, 0, s.iface, name).Store(dest)
	if err != nil {
		return fmt.Errorf("get property %s: %w", name, err)
	}
	return nil
}

// variant reads a property without interpreting it.
func (s stub) variant(ctx context.Context, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := s.property(ctx, name, &v)
	return v, err
}

func (s stub) setProperty(ctx context.Context, name string, value interface{}) error {
	v, ok := value.(dbus.Variant)
	if !ok {
		v = dbus.MakeVariant(value)
	}
	if err := s.obj.CallWithContext(ctx, propertiesSet, 0, s.iface, name, v).Err; err != nil {
		return fmt.Errorf("set property %s: %w", name, err)
	}
	return nil
}

// Property reads an arbitrary property of the object.
func (s stub) Property(ctx context.Context, name string) (dbus.Variant, error) {
	return s.variant(ctx, name)
}

// SetProperty writes an arbitrary property of the object.
func (s stub) SetProperty(ctx context.Context, name string, value interface{}) error {
	return s.setProperty(ctx, name, value)
}

// Path returns the object path the stub is bound to.
func (s stub) Path() dbus.ObjectPath {
	return s.obj.Path()
}
