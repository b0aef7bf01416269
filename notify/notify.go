// Package notify shows desktop notifications for VPN session events.
// Notifications are sent to the freedesktop notification service on the
// user's session bus.
package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

const (
	serviceName = "org.freedesktop.Notifications"
	servicePath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall  = serviceName + ".Notify"

	// expireDefault lets the server choose how long to show a notification.
	expireDefault int32 = -1
)

// Urgency is the urgency level of a notification.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Type represents the type of notification
type Type int

const (
	TypeInfo Type = iota
	TypeSuccess
	TypeWarning
	TypeError
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    Type
	Icon    string
}

func (n Notification) icon() string {
	if n.Icon != "" {
		return n.Icon
	}
	switch n.Type {
	case TypeWarning:
		return "dialog-warning"
	case TypeError:
		return "dialog-error"
	default:
		return "network-vpn"
	}
}

func (n Notification) urgency() Urgency {
	switch n.Type {
	case TypeError:
		return UrgencyCritical
	case TypeWarning:
		return UrgencyNormal
	default:
		return UrgencyLow
	}
}

// Notifier sends notifications over a session bus connection.
type Notifier struct {
	conn    proxy.Conn
	appName string
}

// New returns a Notifier using conn. The connection is not closed by the
// Notifier.
func New(conn proxy.Conn, appName string) *Notifier {
	return &Notifier{conn: conn, appName: appName}
}

// Show displays n and returns the server's notification ID.
func (s *Notifier) Show(ctx context.Context, n Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.urgency())),
	}
	var id uint32
	err := s.conn.Object(serviceName, servicePath).
		CallWithContext(ctx, notifyCall, 0,
			s.appName, uint32(0), n.icon(), n.Title, n.Message, []string{}, hints, expireDefault).
		Store(&id)
	if err != nil {
		return 0, fmt.Errorf("show notification: %w", err)
	}
	return id, nil
}

// Send displays n and logs failures instead of returning them. A desktop
// without a notification service is not an error for the caller.
func (s *Notifier) Send(ctx context.Context, n Notification) {
	if _, err := s.Show(ctx, n); err != nil {
		common.LogDebug("Notification %q not shown: %v", n.Title, err)
	}
}

// Connected is shown when a tunnel comes up.
func Connected(profileName string) Notification {
	return Notification{
		Title:   "VPN Connected",
		Message: "Connected to " + profileName,
		Type:    TypeSuccess,
		Icon:    "network-vpn",
	}
}

// Disconnected is shown when a tunnel goes down.
func Disconnected(profileName string) Notification {
	return Notification{
		Title:   "VPN Disconnected",
		Message: "Disconnected from " + profileName,
		Type:    TypeInfo,
		Icon:    "network-vpn-disconnected",
	}
}

// Failed is shown when a connection attempt fails.
func Failed(profileName string, st proxy.Status) Notification {
	msg := st.Minor.String()
	if st.Message != "" {
		msg += ": " + st.Message
	}
	return Notification{
		Title:   "Connection Error",
		Message: profileName + ": " + msg,
		Type:    TypeError,
		Icon:    "network-vpn-error",
	}
}

// HealthChanged is shown when the health checker moves a session to a
// new state. Recoveries are informational, degradations warn.
func HealthChanged(name string, from, to vpn.HealthState) Notification {
	n := Notification{
		Title:   "VPN " + to.String(),
		Message: fmt.Sprintf("%s: %s -> %s", name, from, to),
		Type:    TypeWarning,
	}
	switch to {
	case vpn.HealthHealthy:
		n.Type = TypeSuccess
	case vpn.HealthUnhealthy:
		n.Type = TypeError
	}
	return n
}
