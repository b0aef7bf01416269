package vpn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

// Session is a VPN session. All remote operations of proxy.SessionNode
// are available; Ready reports the conditions WaitReady acts on as
// common.ErrBackendNotReady and common.ErrMissingUserCredentials.
type Session struct {
	*proxy.SessionNode
	conn   proxy.Conn
	logger common.Logger
}

func newSession(conn proxy.Conn, path dbus.ObjectPath, logger common.Logger) *Session {
	return &Session{
		SessionNode: proxy.NewSessionNode(conn, path),
		conn:        conn,
		logger:      logger,
	}
}

// Ready checks whether the session can be connected.
func (s *Session) Ready(ctx context.Context) error {
	return classifyReadyError(s.SessionNode.Ready(ctx))
}

// UserInputQueueFetch returns the pending request with the given ID.
// It fails with common.ErrUserInputSlotMismatch if the daemon echoes a
// different type, group or ID.
func (s *Session) UserInputQueueFetch(ctx context.Context, tg proxy.TypeGroup, id uint32) (*UserInputSlot, error) {
	return newUserInputSlot(ctx, s.SessionNode, tg, id)
}

// FetchUserInputSlots returns every pending user input request, grouped
// by queue in the order the daemon lists them.
func (s *Session) FetchUserInputSlots(ctx context.Context) ([]*UserInputSlot, error) {
	groups, err := s.UserInputQueueGetTypeGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("list input queues: %w", err)
	}
	var slots []*UserInputSlot
	for _, tg := range groups {
		ids, err := s.UserInputQueueCheck(ctx, tg)
		if err != nil {
			return nil, fmt.Errorf("check input queue %s: %w", tg, err)
		}
		for _, id := range ids {
			slot, err := s.UserInputQueueFetch(ctx, tg, id)
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

// Log subscribes to the session's log lines and asks the daemon to start
// forwarding them. Closing the stream does not stop forwarding; call
// LogForward(ctx, false) for that.
func (s *Session) Log(ctx context.Context) (*proxy.Stream[proxy.LogEvent], error) {
	stream, err := s.SessionNode.Log()
	if err != nil {
		return nil, err
	}
	if err := s.LogForward(ctx, true); err != nil {
		stream.Close()
		return nil, fmt.Errorf("enable log forwarding: %w", err)
	}
	return stream, nil
}

// SessionInfo is a snapshot of a session's properties.
type SessionInfo struct {
	Path        dbus.ObjectPath
	ConfigName  string
	ConfigPath  dbus.ObjectPath
	SessionName string
	Device      string
	Owner       uint32
	BackendPID  uint32
	Created     time.Time
	Status      proxy.Status
	Statistics  proxy.Statistics
}

// Connected reports whether the tunnel is up.
func (i SessionInfo) Connected() bool {
	return i.Status.Is(proxy.StatusMajorConnection, proxy.StatusMinorConnConnected)
}

// Info reads a snapshot of the session. The device name and statistics
// are not available before the backend has started, so failures reading
// them leave the fields empty.
func (s *Session) Info(ctx context.Context) (SessionInfo, error) {
	info := SessionInfo{Path: s.Path()}
	var err error
	if info.ConfigName, err = s.ConfigName(ctx); err != nil {
		return info, err
	}
	if info.ConfigPath, err = s.ConfigPath(ctx); err != nil {
		return info, err
	}
	if info.SessionName, err = s.SessionName(ctx); err != nil {
		return info, err
	}
	if info.Owner, err = s.Owner(ctx); err != nil {
		return info, err
	}
	if info.Status, err = s.Status(ctx); err != nil {
		return info, err
	}
	created, err := s.SessionCreated(ctx)
	if err != nil {
		return info, err
	}
	info.Created = time.Unix(int64(created), 0)

	if info.BackendPID, err = s.BackendPID(ctx); err != nil {
		s.logger.Debug("session %s: backend_pid: %v", common.ShortPath(string(info.Path)), err)
	}
	if info.Device, err = s.DeviceName(ctx); err != nil {
		s.logger.Debug("session %s: device_name: %v", common.ShortPath(string(info.Path)), err)
	}
	if info.Statistics, err = s.Statistics(ctx); err != nil {
		s.logger.Debug("session %s: statistics: %v", common.ShortPath(string(info.Path)), err)
	}
	return info, nil
}

// isUnknownObject reports whether err says the object no longer exists.
func isUnknownObject(err error) bool {
	var de dbus.Error
	if !errors.As(err, &de) {
		return false
	}
	switch de.Name {
	case "org.freedesktop.DBus.Error.UnknownObject", "org.freedesktop.DBus.Error.UnknownMethod":
		return true
	}
	return false
}
