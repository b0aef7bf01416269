package vpn

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/common"
)

func TestClassifyReadyError(t *testing.T) {
	transport := errors.New("dbus: connection closed by user")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "backend not ready",
			in:   dbus.Error{Name: "net.openvpn.v3.sessions.error", Body: []interface{}{"Backend VPN process is not ready"}},
			want: common.ErrBackendNotReady,
		},
		{
			name: "missing credentials",
			in:   dbus.Error{Name: "net.openvpn.v3.error.ready", Body: []interface{}{"Missing user credentials"}},
			want: common.ErrMissingUserCredentials,
		},
		{
			name: "pointer error",
			in:   dbus.NewError("net.openvpn.v3.error.ready", []interface{}{"Missing user credentials"}),
			want: common.ErrMissingUserCredentials,
		},
		{
			name: "wrapped",
			in:   fmt.Errorf("ready: %w", dbus.Error{Name: "net.openvpn.v3.sessions.error", Body: []interface{}{"Backend VPN process is not ready"}}),
			want: common.ErrBackendNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyReadyError(tt.in)
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, remoteErrorText(tt.in), remoteErrorText(got))
			assert.Equal(t, tt.in.Error(), got.Error())
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		assert.Same(t, transport, classifyReadyError(transport))
		other := dbus.Error{Name: "net.openvpn.v3.error.acl", Body: []interface{}{"Access denied"}}
		assert.Equal(t, error(other), classifyReadyError(other))
		assert.NoError(t, classifyReadyError(nil))
	})

	t.Run("same text under another error name", func(t *testing.T) {
		tests := []error{
			dbus.Error{Name: "net.openvpn.v3.error.generic", Body: []interface{}{"Backend VPN process is not ready"}},
			dbus.Error{Name: "net.openvpn.v3.configuration.error", Body: []interface{}{"Missing user credentials"}},
			errors.New("Backend VPN process is not ready"),
		}
		for _, in := range tests {
			got := classifyReadyError(in)
			assert.NotErrorIs(t, got, common.ErrBackendNotReady, in.Error())
			assert.NotErrorIs(t, got, common.ErrMissingUserCredentials, in.Error())
		}
	})

	t.Run("pointer error stays reachable", func(t *testing.T) {
		err := classifyReadyError(dbus.NewError("net.openvpn.v3.error.ready", []interface{}{"Missing user credentials"}))
		var de *dbus.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "net.openvpn.v3.error.ready", de.Name)
	})

	t.Run("bus error stays reachable", func(t *testing.T) {
		err := classifyReadyError(dbus.Error{Name: "net.openvpn.v3.sessions.error", Body: []interface{}{"Backend VPN process is not ready"}})
		var de dbus.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "net.openvpn.v3.sessions.error", de.Name)
	})
}
