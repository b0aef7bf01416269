package proxy

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// SessionManager is the entry point of the session service.
type SessionManager struct {
	stub
	conn Conn
}

// NewSessionManager binds to the session manager object.
func NewSessionManager(conn Conn) *SessionManager {
	return &SessionManager{
		stub: newStub(conn, SessionsBusName, SessionsPath, SessionsInterface),
		conn: conn,
	}
}

// NewTunnel creates a session from the profile at config and returns the
// session's object path. The session still has to be made ready and
// connected.
func (m *SessionManager) NewTunnel(ctx context.Context, config dbus.ObjectPath) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := m.call(ctx, "NewTunnel", config).Store(&path)
	return path, err
}

// FetchAvailableSessions lists the sessions the caller may access.
func (m *SessionManager) FetchAvailableSessions(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := m.call(ctx, "FetchAvailableSessions").Store(&paths)
	return paths, err
}

// FetchManagedInterfaces lists the tun devices owned by sessions.
func (m *SessionManager) FetchManagedInterfaces(ctx context.Context) ([]string, error) {
	var devices []string
	err := m.call(ctx, "FetchManagedInterfaces").Store(&devices)
	return devices, err
}

// LookupConfigName lists sessions started from profiles named name.
func (m *SessionManager) LookupConfigName(ctx context.Context, name string) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := m.call(ctx, "LookupConfigName", name).Store(&paths)
	return paths, err
}

// LookupInterface returns the session owning the tun device.
func (m *SessionManager) LookupInterface(ctx context.Context, device string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := m.call(ctx, "LookupInterface", device).Store(&path)
	return path, err
}

// TransferOwnership hands a session to another user. Root only.
func (m *SessionManager) TransferOwnership(ctx context.Context, path dbus.ObjectPath, uid uint32) error {
	return m.invoke(ctx, "TransferOwnership", path, uid)
}

// Version returns the service version string.
func (m *SessionManager) Version(ctx context.Context) (string, error) {
	return get[string](ctx, m.stub, "version")
}

// SessionEvents subscribes to session creation and removal.
func (m *SessionManager) SessionEvents() (*Stream[SessionEvent], error) {
	return subscribe(m.conn, SessionsBusName, SessionsPath, SessionsInterface, "SessionManagerEvent", decodeSessionEventSignal)
}

// Log subscribes to log lines from every session the caller may see.
func (m *SessionManager) Log() (*Stream[LogEvent], error) {
	return subscribe(m.conn, SessionsBusName, "", SessionsInterface, "Log", decodeLogSignal)
}

// SessionNode is one VPN session.
type SessionNode struct {
	stub
	conn Conn
}

// NewSessionNode binds to the session at path.
func NewSessionNode(conn Conn, path dbus.ObjectPath) *SessionNode {
	return &SessionNode{
		stub: newStub(conn, SessionsBusName, path, SessionsInterface),
		conn: conn,
	}
}

// Ready succeeds once the backend process has everything it needs to
// connect. Until then it fails with a remote error describing what is
// missing.
func (n *SessionNode) Ready(ctx context.Context) error {
	return n.invoke(ctx, "Ready")
}

// Connect starts the tunnel. The session must be ready.
func (n *SessionNode) Connect(ctx context.Context) error {
	return n.invoke(ctx, "Connect")
}

// Pause suspends the tunnel; reason is logged by the backend.
func (n *SessionNode) Pause(ctx context.Context, reason string) error {
	return n.invoke(ctx, "Pause", reason)
}

// Resume restarts a paused tunnel.
func (n *SessionNode) Resume(ctx context.Context) error {
	return n.invoke(ctx, "Resume")
}

// Restart tears the connection down and reconnects.
func (n *SessionNode) Restart(ctx context.Context) error {
	return n.invoke(ctx, "Restart")
}

// Disconnect stops the tunnel and removes the session.
func (n *SessionNode) Disconnect(ctx context.Context) error {
	return n.invoke(ctx, "Disconnect")
}

// AccessGrant gives uid access to the session.
func (n *SessionNode) AccessGrant(ctx context.Context, uid uint32) error {
	return n.invoke(ctx, "AccessGrant", uid)
}

// AccessRevoke withdraws access from uid.
func (n *SessionNode) AccessRevoke(ctx context.Context, uid uint32) error {
	return n.invoke(ctx, "AccessRevoke", uid)
}

// LogForward asks the daemon to start or stop sending this session's Log
// signals to the caller.
func (n *SessionNode) LogForward(ctx context.Context, enable bool) error {
	return n.invoke(ctx, "LogForward", enable)
}

// UserInputQueueGetTypeGroup lists the queues with pending requests.
func (n *SessionNode) UserInputQueueGetTypeGroup(ctx context.Context) ([]TypeGroup, error) {
	var raw []struct {
		Type  uint32
		Group uint32
	}
	if err := n.call(ctx, "UserInputQueueGetTypeGroup").Store(&raw); err != nil {
		return nil, err
	}
	groups := make([]TypeGroup, 0, len(raw))
	for _, r := range raw {
		t, err := ParseClientAttentionType(r.Type)
		if err != nil {
			return nil, err
		}
		g, err := ParseClientAttentionGroup(r.Group)
		if err != nil {
			return nil, err
		}
		groups = append(groups, TypeGroup{Type: t, Group: g})
	}
	return groups, nil
}

// UserInputQueueCheck lists the request IDs pending in a queue.
func (n *SessionNode) UserInputQueueCheck(ctx context.Context, tg TypeGroup) ([]uint32, error) {
	var ids []uint32
	err := n.call(ctx, "UserInputQueueCheck", uint32(tg.Type), uint32(tg.Group)).Store(&ids)
	return ids, err
}

// UserInputQueueFetch returns the request with the given ID. The reply
// echoes type, group and ID; callers should check them against what
// they asked for.
func (n *SessionNode) UserInputQueueFetch(ctx context.Context, tg TypeGroup, id uint32) (UserInputRequest, error) {
	var raw struct {
		Type, Group, ID   uint32
		Name, Description string
		HiddenInput       bool
	}
	err := n.call(ctx, "UserInputQueueFetch", uint32(tg.Type), uint32(tg.Group), id).
		Store(&raw.Type, &raw.Group, &raw.ID, &raw.Name, &raw.Description, &raw.HiddenInput)
	if err != nil {
		return UserInputRequest{}, err
	}
	t, err := ParseClientAttentionType(raw.Type)
	if err != nil {
		return UserInputRequest{}, err
	}
	g, err := ParseClientAttentionGroup(raw.Group)
	if err != nil {
		return UserInputRequest{}, err
	}
	return UserInputRequest{
		Type:        t,
		Group:       g,
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		HiddenInput: raw.HiddenInput,
	}, nil
}

// UserInputProvide answers a pending request.
func (n *SessionNode) UserInputProvide(ctx context.Context, tg TypeGroup, id uint32, value string) error {
	return n.invoke(ctx, "UserInputProvide", uint32(tg.Type), uint32(tg.Group), id, value)
}

// ACL lists the user IDs granted access besides the owner.
func (n *SessionNode) ACL(ctx context.Context) ([]uint32, error) {
	return get[[]uint32](ctx, n.stub, "acl")
}

// BackendPID is the process ID of the VPN client backend.
func (n *SessionNode) BackendPID(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "backend_pid")
}

// ConfigName is the name of the profile the session was started from.
func (n *SessionNode) ConfigName(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "config_name")
}

// ConfigPath is the object path of that profile.
func (n *SessionNode) ConfigPath(ctx context.Context) (dbus.ObjectPath, error) {
	return get[dbus.ObjectPath](ctx, n.stub, "config_path")
}

// DCO reports whether the session uses data channel offload.
func (n *SessionNode) DCO(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "dco")
}

// SetDCO enables or disables data channel offload before connecting.
func (n *SessionNode) SetDCO(ctx context.Context, enabled bool) error {
	return n.setProperty(ctx, "dco", enabled)
}

// DeviceName is the tun device, empty until the tunnel is up.
func (n *SessionNode) DeviceName(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "device_name")
}

// DevicePath is the netcfg object of the tun device.
func (n *SessionNode) DevicePath(ctx context.Context) (dbus.ObjectPath, error) {
	return get[dbus.ObjectPath](ctx, n.stub, "device_path")
}

// LastLog returns the last log line the backend emitted.
func (n *SessionNode) LastLog(ctx context.Context) (LogEvent, error) {
	v, err := n.variant(ctx, "last_log")
	if err != nil {
		return LogEvent{}, err
	}
	e, err := DecodeLogEvent(v)
	if err != nil {
		return LogEvent{}, fmt.Errorf("property last_log: %w", err)
	}
	e.Path = n.Path()
	return e, nil
}

// LogForwards lists the active log forwarding objects.
func (n *SessionNode) LogForwards(ctx context.Context) ([]dbus.ObjectPath, error) {
	return get[[]dbus.ObjectPath](ctx, n.stub, "log_forwards")
}

// LogVerbosity is the verbosity of the session's Log signals.
func (n *SessionNode) LogVerbosity(ctx context.Context) (LogLevel, error) {
	v, err := get[uint32](ctx, n.stub, "log_verbosity")
	if err != nil {
		return 0, err
	}
	return ParseLogLevel(v)
}

// SetLogVerbosity changes the verbosity of the session's Log signals.
func (n *SessionNode) SetLogVerbosity(ctx context.Context, level LogLevel) error {
	return n.setProperty(ctx, "log_verbosity", uint32(level))
}

// Owner is the user ID owning the session.
func (n *SessionNode) Owner(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "owner")
}

// PublicAccess reports whether every user may manage the session.
func (n *SessionNode) PublicAccess(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "public_access")
}

// SetPublicAccess opens the session to every user, or closes it again.
func (n *SessionNode) SetPublicAccess(ctx context.Context, public bool) error {
	return n.setProperty(ctx, "public_access", public)
}

// RestrictLogAccess limits log forwarding to the session owner.
func (n *SessionNode) RestrictLogAccess(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "restrict_log_access")
}

// SetRestrictLogAccess limits log forwarding to the owner.
func (n *SessionNode) SetRestrictLogAccess(ctx context.Context, restrict bool) error {
	return n.setProperty(ctx, "restrict_log_access", restrict)
}

// SessionCreated is the creation time in seconds since the epoch.
func (n *SessionNode) SessionCreated(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, n.stub, "session_created")
}

// SessionName is the name the backend gave the session, usually the server host.
func (n *SessionNode) SessionName(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "session_name")
}

// Statistics returns the tunnel counters, such as BYTES_IN.
func (n *SessionNode) Statistics(ctx context.Context) (Statistics, error) {
	stats, err := get[map[string]int64](ctx, n.stub, "statistics")
	return Statistics(stats), err
}

// Status returns the last status change the session processed.
func (n *SessionNode) Status(ctx context.Context) (Status, error) {
	v, err := n.variant(ctx, "status")
	if err != nil {
		return Status{}, err
	}
	s, err := DecodeStatus(v)
	if err != nil {
		return Status{}, fmt.Errorf("property status: %w", err)
	}
	return s, nil
}

// AttentionRequired subscribes to requests for user interaction.
func (n *SessionNode) AttentionRequired() (*Stream[AttentionRequired], error) {
	return subscribe(n.conn, SessionsBusName, n.Path(), SessionsInterface, "AttentionRequired", decodeAttentionSignal)
}

// StatusChange subscribes to status changes of this session.
func (n *SessionNode) StatusChange() (*Stream[Status], error) {
	return subscribe(n.conn, SessionsBusName, n.Path(), SessionsInterface, "StatusChange", decodeStatusSignal)
}

// Log subscribes to this session's log lines. The daemon only sends them
// after LogForward(true).
func (n *SessionNode) Log() (*Stream[LogEvent], error) {
	return subscribe(n.conn, SessionsBusName, n.Path(), SessionsInterface, "Log", decodeLogSignal)
}
