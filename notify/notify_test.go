package notify

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/proxy/proxytest"
	"github.com/yllada/openvpn3-go/vpn"
)

func TestNotifier_Show(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Reply(servicePath, notifyCall, uint32(17))

	id, err := New(bus, "ovpn3").Show(context.Background(), Connected("office"))
	require.NoError(t, err)
	assert.Equal(t, uint32(17), id)

	calls := bus.Calls(notifyCall)
	require.Len(t, calls, 1)
	args := calls[0].Args
	require.Len(t, args, 8)
	assert.Equal(t, "ovpn3", args[0])
	assert.Equal(t, uint32(0), args[1])
	assert.Equal(t, "network-vpn", args[2])
	assert.Equal(t, "VPN Connected", args[3])
	assert.Equal(t, "Connected to office", args[4])
	assert.Equal(t, map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(UrgencyLow))}, args[6])
	assert.Equal(t, int32(-1), args[7])
}

func TestNotifier_ShowError(t *testing.T) {
	bus := proxytest.NewBus()
	n := New(bus, "ovpn3")

	_, err := n.Show(context.Background(), Disconnected("office"))
	assert.ErrorContains(t, err, "show notification")

	// Send only logs
	n.Send(context.Background(), Disconnected("office"))
	assert.Len(t, bus.Calls(notifyCall), 2)
}

func TestNotification_Defaults(t *testing.T) {
	tests := []struct {
		name    string
		n       Notification
		icon    string
		urgency Urgency
	}{
		{"info", Notification{Type: TypeInfo}, "network-vpn", UrgencyLow},
		{"success", Notification{Type: TypeSuccess}, "network-vpn", UrgencyLow},
		{"warning", Notification{Type: TypeWarning}, "dialog-warning", UrgencyNormal},
		{"error", Notification{Type: TypeError}, "dialog-error", UrgencyCritical},
		{"explicit icon", Notification{Type: TypeError, Icon: "x"}, "x", UrgencyCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.icon, tt.n.icon())
			assert.Equal(t, tt.urgency, tt.n.urgency())
		})
	}
}

func TestFailed(t *testing.T) {
	st := proxy.Status{Major: proxy.StatusMajorConnection, Minor: proxy.StatusMinorConnAuthFailed, Message: "bad password"}
	n := Failed("office", st)
	assert.Equal(t, TypeError, n.Type)
	assert.Contains(t, n.Message, "office: ")
	assert.Contains(t, n.Message, "bad password")
}

func TestHealthChanged(t *testing.T) {
	assert.Equal(t, TypeSuccess, HealthChanged("office", vpn.HealthDegraded, vpn.HealthHealthy).Type)
	assert.Equal(t, TypeWarning, HealthChanged("office", vpn.HealthHealthy, vpn.HealthDegraded).Type)

	n := HealthChanged("office", vpn.HealthDegraded, vpn.HealthUnhealthy)
	assert.Equal(t, TypeError, n.Type)
	assert.Equal(t, "VPN Unhealthy", n.Title)
	assert.Equal(t, "office: Degraded -> Unhealthy", n.Message)
}
