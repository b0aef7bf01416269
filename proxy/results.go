package proxy

import (
	"fmt"
	"math"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
)

func decodeError(what, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", common.ErrDecode, what, fmt.Sprintf(format, args...))
}

// toUint32 accepts any unsigned or non-negative integer the daemon may
// use for an enum code. Older daemons send some codes as bytes.
func toUint32(v interface{}) (uint32, bool) {
	switch n := v.(type) {
	case dbus.Variant:
		return toUint32(n.Value())
	case uint8:
		return uint32(n), true
	case uint16:
		return uint32(n), true
	case uint32:
		return n, true
	case uint64:
		if n > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int64:
		if n < 0 || n > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	case int:
		if n < 0 || int64(n) > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	}
	return 0, false
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case dbus.Variant:
		return toString(s.Value())
	case string:
		return s, true
	}
	return "", false
}

// codesAndMessage reads a fixed-shape tuple of codes followed by a trailing
// string, which is how status, log and attention records travel.
func codesAndMessage(what string, body []interface{}, ncodes int) ([]uint32, string, error) {
	if len(body) != ncodes+1 {
		return nil, "", decodeError(what, "expected %d fields, got %d", ncodes+1, len(body))
	}
	codes := make([]uint32, ncodes)
	for i := 0; i < ncodes; i++ {
		c, ok := toUint32(body[i])
		if !ok {
			return nil, "", decodeError(what, "field %d has type %T", i, body[i])
		}
		codes[i] = c
	}
	msg, ok := toString(body[ncodes])
	if !ok {
		return nil, "", decodeError(what, "message has type %T", body[ncodes])
	}
	return codes, msg, nil
}

// dictCodesAndMessage reads the same record from its a{sv} form.
func dictCodesAndMessage(what string, dict map[string]dbus.Variant, keys ...string) ([]uint32, string, error) {
	codes := make([]uint32, len(keys)-1)
	for i, k := range keys[:len(keys)-1] {
		v, ok := dict[k]
		if !ok {
			return nil, "", decodeError(what, "missing key %q", k)
		}
		c, ok := toUint32(v)
		if !ok {
			return nil, "", decodeError(what, "key %q has type %s", k, v.Signature())
		}
		codes[i] = c
	}
	var msg string
	if v, ok := dict[keys[len(keys)-1]]; ok {
		if msg, ok = toString(v); !ok {
			return nil, "", decodeError(what, "message has type %s", v.Signature())
		}
	}
	return codes, msg, nil
}

func recordFields(what string, v interface{}, ncodes int, keys ...string) ([]uint32, string, error) {
	switch body := v.(type) {
	case dbus.Variant:
		return recordFields(what, body.Value(), ncodes, keys...)
	case []interface{}:
		return codesAndMessage(what, body, ncodes)
	case map[string]dbus.Variant:
		return dictCodesAndMessage(what, body, keys...)
	default:
		return nil, "", decodeError(what, "unexpected value of type %T", v)
	}
}

// Status is a snapshot of a session's last status change.
type Status struct {
	Major   StatusMajor
	Minor   StatusMinor
	Message string
}

// NewStatus builds a Status from wire codes.
func NewStatus(major, minor uint32, message string) (Status, error) {
	ma, err := ParseStatusMajor(major)
	if err != nil {
		return Status{}, err
	}
	mi, err := ParseStatusMinor(minor)
	if err != nil {
		return Status{}, err
	}
	return Status{Major: ma, Minor: mi, Message: message}, nil
}

// DecodeStatus decodes a (uus) tuple or its a{sv} dictionary form.
func DecodeStatus(v interface{}) (Status, error) {
	codes, msg, err := recordFields("status", v, 2, "major", "minor", "status_message")
	if err != nil {
		return Status{}, err
	}
	return NewStatus(codes[0], codes[1], msg)
}

func (s Status) String() string {
	if s.Message == "" {
		return fmt.Sprintf("%s, %s", s.Major, s.Minor)
	}
	return fmt.Sprintf("%s, %s: %s", s.Major, s.Minor, s.Message)
}

// Is reports whether the status has the given major and minor codes.
func (s Status) Is(major StatusMajor, minor StatusMinor) bool {
	return s.Major == major && s.Minor == minor
}

// LogEvent is a single log line, either from a Log signal or from the
// last_log property. Path is the emitting object for signals.
type LogEvent struct {
	Path     dbus.ObjectPath
	Group    LogGroup
	Category LogCategory
	Message  string
}

// NewLogEvent builds a LogEvent from wire codes.
func NewLogEvent(group, category uint32, message string) (LogEvent, error) {
	g, err := ParseLogGroup(group)
	if err != nil {
		return LogEvent{}, err
	}
	c, err := ParseLogCategory(category)
	if err != nil {
		return LogEvent{}, err
	}
	return LogEvent{Group: g, Category: c, Message: message}, nil
}

// DecodeLogEvent decodes a (uus) tuple or its a{sv} dictionary form.
func DecodeLogEvent(v interface{}) (LogEvent, error) {
	codes, msg, err := recordFields("log", v, 2, "log_group", "log_category", "log_message")
	if err != nil {
		return LogEvent{}, err
	}
	return NewLogEvent(codes[0], codes[1], msg)
}

func (e LogEvent) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Group, e.Category, e.Message)
}

// Statistics maps counter names such as BYTES_IN to values.
type Statistics map[string]int64

// TypeGroup identifies one queue of pending user input requests.
type TypeGroup struct {
	Type  ClientAttentionType
	Group ClientAttentionGroup
}

func (tg TypeGroup) String() string {
	return fmt.Sprintf("%s / %s", tg.Type, tg.Group)
}

// UserInputRequest describes one pending user input slot as returned by
// UserInputQueueFetch.
type UserInputRequest struct {
	Type        ClientAttentionType
	Group       ClientAttentionGroup
	ID          uint32
	Name        string
	Description string
	HiddenInput bool
}

// TypeGroup returns the queue the request belongs to.
func (r UserInputRequest) TypeGroup() TypeGroup {
	return TypeGroup{Type: r.Type, Group: r.Group}
}

// AttentionRequired is the payload of an AttentionRequired signal.
type AttentionRequired struct {
	Type    ClientAttentionType
	Group   ClientAttentionGroup
	Message string
}

// SessionEvent reports a session being created or destroyed.
type SessionEvent struct {
	Path  dbus.ObjectPath
	Type  EventType
	Owner uint32
}

// NetworkChange reports a change applied by the network configuration
// service.
type NetworkChange struct {
	Type    NetCfgChange
	Device  string
	Details map[string]string
}

func decodeStatusSignal(sig *dbus.Signal) (Status, error) {
	return DecodeStatus(sig.Body)
}

func decodeLogSignal(sig *dbus.Signal) (LogEvent, error) {
	e, err := DecodeLogEvent(sig.Body)
	if err != nil {
		return LogEvent{}, err
	}
	e.Path = sig.Path
	return e, nil
}

func decodeAttentionSignal(sig *dbus.Signal) (AttentionRequired, error) {
	codes, msg, err := codesAndMessage("attention required", sig.Body, 2)
	if err != nil {
		return AttentionRequired{}, err
	}
	t, err := ParseClientAttentionType(codes[0])
	if err != nil {
		return AttentionRequired{}, err
	}
	g, err := ParseClientAttentionGroup(codes[1])
	if err != nil {
		return AttentionRequired{}, err
	}
	return AttentionRequired{Type: t, Group: g, Message: msg}, nil
}

func decodeSessionEventSignal(sig *dbus.Signal) (SessionEvent, error) {
	if len(sig.Body) != 3 {
		return SessionEvent{}, decodeError("session event", "expected 3 fields, got %d", len(sig.Body))
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return SessionEvent{}, decodeError("session event", "path has type %T", sig.Body[0])
	}
	code, ok := toUint32(sig.Body[1])
	if !ok {
		return SessionEvent{}, decodeError("session event", "type has type %T", sig.Body[1])
	}
	typ, err := ParseEventType(code)
	if err != nil {
		return SessionEvent{}, err
	}
	owner, ok := toUint32(sig.Body[2])
	if !ok {
		return SessionEvent{}, decodeError("session event", "owner has type %T", sig.Body[2])
	}
	return SessionEvent{Path: path, Type: typ, Owner: owner}, nil
}

func decodeNetworkChangeSignal(sig *dbus.Signal) (NetworkChange, error) {
	if len(sig.Body) != 3 {
		return NetworkChange{}, decodeError("network change", "expected 3 fields, got %d", len(sig.Body))
	}
	code, ok := toUint32(sig.Body[0])
	if !ok {
		return NetworkChange{}, decodeError("network change", "type has type %T", sig.Body[0])
	}
	typ, err := ParseNetCfgChange(code)
	if err != nil {
		return NetworkChange{}, err
	}
	dev, ok := toString(sig.Body[1])
	if !ok {
		return NetworkChange{}, decodeError("network change", "device has type %T", sig.Body[1])
	}
	change := NetworkChange{Type: typ, Device: dev, Details: map[string]string{}}
	switch details := sig.Body[2].(type) {
	case map[string]string:
		for k, v := range details {
			change.Details[k] = v
		}
	case string:
		if details != "" {
			change.Details["details"] = details
		}
	default:
		return NetworkChange{}, decodeError("network change", "details have type %T", sig.Body[2])
	}
	return change, nil
}
