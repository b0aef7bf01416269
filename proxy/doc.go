// Package proxy contains typed stubs for the OpenVPN 3 Linux D-Bus
// services: the configuration manager and its profiles, the session
// manager and its sessions, the log service and the network
// configuration service.
//
// Every method maps one to one onto a remote method or property. Enum
// codes received from the daemon are checked; an unknown code yields an
// error wrapping common.ErrDecode instead of an out-of-range value.
// Remote failures are returned as the dbus.Error the bus delivered.
//
// Signals are consumed through Stream, a pull-based subscription:
//
//	s, err := node.StatusChange()
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for status, err := range s.All(ctx) {
//	    ...
//	}
package proxy
