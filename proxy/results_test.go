package proxy

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/common"
)

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    Status
		wantErr bool
	}{
		{
			name: "tuple",
			in:   []interface{}{uint32(2), uint32(7), "Connected"},
			want: Status{Major: StatusMajorConnection, Minor: StatusMinorConnConnected, Message: "Connected"},
		},
		{
			name: "tuple in variant",
			in:   dbus.MakeVariant([]interface{}{uint32(3), uint32(20), ""}),
			want: Status{Major: StatusMajorSession, Minor: StatusMinorSessAuthUserpass},
		},
		{
			name: "dictionary",
			in: map[string]dbus.Variant{
				"major":          dbus.MakeVariant(uint32(2)),
				"minor":          dbus.MakeVariant(uint32(10)),
				"status_message": dbus.MakeVariant("TLS handshake failed"),
			},
			want: Status{Major: StatusMajorConnection, Minor: StatusMinorConnFailed, Message: "TLS handshake failed"},
		},
		{
			name:    "unknown minor",
			in:      []interface{}{uint32(2), uint32(99), "?"},
			wantErr: true,
		},
		{
			name:    "short tuple",
			in:      []interface{}{uint32(2), uint32(7)},
			wantErr: true,
		},
		{
			name:    "wrong field type",
			in:      []interface{}{"2", uint32(7), "x"},
			wantErr: true,
		},
		{
			name:    "dictionary without major",
			in:      map[string]dbus.Variant{"minor": dbus.MakeVariant(uint32(7))},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeLogEvent_AcceptsByteCodes(t *testing.T) {
	e, err := DecodeLogEvent([]interface{}{uint8(7), uint8(6), "AUTH_FAILED"})
	require.NoError(t, err)
	assert.Equal(t, LogGroupClient, e.Group)
	assert.Equal(t, LogCategoryError, e.Category)
	assert.Equal(t, "[Client] -- ERROR --: AUTH_FAILED", e.String())
}

func TestStatus_String(t *testing.T) {
	s := Status{Major: StatusMajorConnection, Minor: StatusMinorConnConnected}
	assert.Equal(t, "Connection, Client connected", s.String())
	s.Message = "10.8.0.2"
	assert.Equal(t, "Connection, Client connected: 10.8.0.2", s.String())
	assert.True(t, s.Is(StatusMajorConnection, StatusMinorConnConnected))
}

func TestToUint32(t *testing.T) {
	tests := []struct {
		in   interface{}
		want uint32
		ok   bool
	}{
		{uint8(3), 3, true},
		{uint16(3), 3, true},
		{uint32(3), 3, true},
		{int32(3), 3, true},
		{int32(-1), 0, false},
		{uint64(1 << 40), 0, false},
		{dbus.MakeVariant(uint32(9)), 9, true},
		{"3", 0, false},
	}

	for _, tt := range tests {
		got, ok := toUint32(tt.in)
		assert.Equal(t, tt.ok, ok, "%T(%v)", tt.in, tt.in)
		assert.Equal(t, tt.want, got, "%T(%v)", tt.in, tt.in)
	}
}

func TestDecodeSignals(t *testing.T) {
	t.Run("session event", func(t *testing.T) {
		ev, err := decodeSessionEventSignal(&dbus.Signal{
			Body: []interface{}{dbus.ObjectPath("/net/openvpn/v3/sessions/a1"), uint16(1), uint32(1000)},
		})
		require.NoError(t, err)
		assert.Equal(t, SessionEvent{Path: "/net/openvpn/v3/sessions/a1", Type: EventCreated, Owner: 1000}, ev)
	})

	t.Run("session event with unknown type", func(t *testing.T) {
		_, err := decodeSessionEventSignal(&dbus.Signal{
			Body: []interface{}{dbus.ObjectPath("/x"), uint16(7), uint32(0)},
		})
		assert.ErrorIs(t, err, common.ErrDecode)
	})

	t.Run("attention required", func(t *testing.T) {
		a, err := decodeAttentionSignal(&dbus.Signal{
			Body: []interface{}{uint32(1), uint32(1), "Username/password required"},
		})
		require.NoError(t, err)
		assert.Equal(t, AttentionTypeCredentials, a.Type)
		assert.Equal(t, AttentionGroupUserPassword, a.Group)
	})

	t.Run("network change", func(t *testing.T) {
		c, err := decodeNetworkChangeSignal(&dbus.Signal{
			Body: []interface{}{uint32(NetCfgDNSServerAdded), "tun0", map[string]string{"dns_server": "10.8.0.1"}},
		})
		require.NoError(t, err)
		assert.Equal(t, NetCfgDNSServerAdded, c.Type)
		assert.Equal(t, "tun0", c.Device)
		assert.Equal(t, "10.8.0.1", c.Details["dns_server"])
	})

	t.Run("log carries path", func(t *testing.T) {
		e, err := decodeLogSignal(&dbus.Signal{
			Path: "/net/openvpn/v3/sessions/a1",
			Body: []interface{}{uint32(6), uint32(4), "Connected"},
		})
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/net/openvpn/v3/sessions/a1"), e.Path)
		assert.Equal(t, LogGroupBackendProc, e.Group)
	})
}
