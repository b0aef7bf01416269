package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/proxy/proxytest"
)

const sessionPath = dbus.ObjectPath("/net/openvpn/v3/sessions/5b1c7e")

func method(name string) string {
	return proxy.SessionsInterface + "." + name
}

func TestConfigurationManager_ImportAndFetch(t *testing.T) {
	bus := proxytest.NewBus()
	cfgPath := dbus.ObjectPath("/net/openvpn/v3/configuration/7f2a")
	bus.Handle(proxy.ConfigurationPath, proxy.ConfigurationInterface+".Import", func(args []interface{}) ([]interface{}, error) {
		bus.Reply(cfgPath, proxy.ConfigurationInterface+".Fetch", args[1])
		return []interface{}{cfgPath}, nil
	})

	ctx := context.Background()
	path, err := proxy.NewConfigurationManager(bus).Import(ctx, "office", "remote vpn.example.com\n", false, true)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)

	calls := bus.Calls(proxy.ConfigurationInterface + ".Import")
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{"office", "remote vpn.example.com\n", false, true}, calls[0].Args)

	text, err := proxy.NewConfigurationNode(bus, path).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote vpn.example.com\n", text)
}

func TestConfigurationNode_Properties(t *testing.T) {
	bus := proxytest.NewBus()
	path := dbus.ObjectPath("/net/openvpn/v3/configuration/7f2a")
	bus.SetProperty(path, "name", "office")
	bus.SetProperty(path, "acl", []uint32{1000, 1001})
	bus.SetProperty(path, "locked_down", false)
	bus.SetProperty(path, "import_timestamp", uint64(1700000000))

	ctx := context.Background()
	node := proxy.NewConfigurationNode(bus, path)

	name, err := node.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "office", name)

	acl, err := node.ACL(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1000, 1001}, acl)

	ts, err := node.ImportTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	require.NoError(t, node.SetLockedDown(ctx, true))
	v, _ := bus.Property(path, "locked_down")
	assert.Equal(t, true, v)

	_, err = node.Valid(ctx)
	assert.Error(t, err, "unset property should fail")
}

func TestConfigurationNode_GenericProperty(t *testing.T) {
	bus := proxytest.NewBus()
	path := dbus.ObjectPath("/net/openvpn/v3/configuration/7f2a")
	bus.SetProperty(path, "future_flag", uint32(3))

	ctx := context.Background()
	node := proxy.NewConfigurationNode(bus, path)

	v, err := node.Property(ctx, "future_flag")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value())

	require.NoError(t, node.SetProperty(ctx, "future_flag", uint32(4)))
	stored, _ := bus.Property(path, "future_flag")
	assert.Equal(t, uint32(4), stored)

	err = node.SetProperty(ctx, "missing", true)
	assert.ErrorContains(t, err, "set property missing")
}

func TestSessionNode_Status(t *testing.T) {
	bus := proxytest.NewBus()
	bus.SetProperty(sessionPath, "status", []interface{}{uint32(2), uint32(7), "Connected"})

	st, err := proxy.NewSessionNode(bus, sessionPath).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, proxy.StatusMajorConnection, st.Major)
	assert.Equal(t, proxy.StatusMinorConnConnected, st.Minor)
	assert.Equal(t, "Connected", st.Message)
}

func TestSessionNode_StatusUnknownCode(t *testing.T) {
	bus := proxytest.NewBus()
	bus.SetProperty(sessionPath, "status", []interface{}{uint32(2), uint32(250), ""})

	_, err := proxy.NewSessionNode(bus, sessionPath).Status(context.Background())
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestSessionNode_Statistics(t *testing.T) {
	bus := proxytest.NewBus()
	bus.SetProperty(sessionPath, "statistics", map[string]int64{"BYTES_IN": 4096, "BYTES_OUT": 1024})

	stats, err := proxy.NewSessionNode(bus, sessionPath).Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4096), stats["BYTES_IN"])
	assert.Len(t, stats, 2)
}

func TestSessionNode_UserInputQueue(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Reply(sessionPath, method("UserInputQueueGetTypeGroup"),
		[][]interface{}{{uint32(1), uint32(1)}})
	bus.Reply(sessionPath, method("UserInputQueueCheck"), []uint32{0, 1})
	bus.Handle(sessionPath, method("UserInputQueueFetch"), func(args []interface{}) ([]interface{}, error) {
		return []interface{}{args[0], args[1], args[2], "password", "Auth Password", true}, nil
	})

	ctx := context.Background()
	node := proxy.NewSessionNode(bus, sessionPath)

	groups, err := node.UserInputQueueGetTypeGroup(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	tg := groups[0]
	assert.Equal(t, proxy.TypeGroup{Type: proxy.AttentionTypeCredentials, Group: proxy.AttentionGroupUserPassword}, tg)

	ids, err := node.UserInputQueueCheck(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)

	req, err := node.UserInputQueueFetch(ctx, tg, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), req.ID)
	assert.Equal(t, "password", req.Name)
	assert.True(t, req.HiddenInput)
}

func TestSessionNode_RemoteErrorPassesThrough(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Handle(sessionPath, method("Connect"), func([]interface{}) ([]interface{}, error) {
		return nil, proxytest.Error("net.openvpn.v3.error.generic", "Backend VPN process is not ready")
	})

	err := proxy.NewSessionNode(bus, sessionPath).Connect(context.Background())
	var dbusErr dbus.Error
	require.ErrorAs(t, err, &dbusErr)
	assert.Equal(t, "net.openvpn.v3.error.generic", dbusErr.Name)
}

func TestSessionNode_CanceledContext(t *testing.T) {
	bus := proxytest.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := proxy.NewSessionNode(bus, sessionPath).Ready(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bus.Calls(""))
}

func TestStream_FiltersAndDecodes(t *testing.T) {
	bus := proxytest.NewBus()
	stream, err := proxy.NewSessionNode(bus, sessionPath).StatusChange()
	require.NoError(t, err)
	defer stream.Close()

	other := dbus.ObjectPath("/net/openvpn/v3/sessions/other")
	bus.Emit(other, method("StatusChange"), uint32(2), uint32(9), "not ours")
	bus.Emit(sessionPath, method("Log"), uint32(6), uint32(4), "wrong member")
	bus.Emit(sessionPath, method("StatusChange"), uint32(2), uint32(99), "bad code")
	bus.Emit(sessionPath, method("StatusChange"), uint32(2), uint32(6), "connecting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = stream.Next(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)

	st, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, proxy.StatusMinorConnConnecting, st.Minor)
	assert.Equal(t, "connecting", st.Message)
}

func TestStream_CloseUnsubscribes(t *testing.T) {
	bus := proxytest.NewBus()
	stream, err := proxy.NewSessionNode(bus, sessionPath).AttentionRequired()
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Matches())

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Equal(t, 0, bus.Matches())

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, common.ErrStreamClosed)
}

func TestStream_All(t *testing.T) {
	bus := proxytest.NewBus()
	stream, err := proxy.NewSessionManager(bus).SessionEvents()
	require.NoError(t, err)
	defer stream.Close()

	bus.Emit(proxy.SessionsPath, proxy.SessionsInterface+".SessionManagerEvent", sessionPath, uint16(1), uint32(1000))
	bus.Emit(proxy.SessionsPath, proxy.SessionsInterface+".SessionManagerEvent", sessionPath, uint16(9), uint32(1000))
	bus.Emit(proxy.SessionsPath, proxy.SessionsInterface+".SessionManagerEvent", sessionPath, uint16(2), uint32(1000))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		events  []proxy.EventType
		decodes int
	)
	for ev, err := range stream.All(ctx) {
		if err != nil {
			decodes++
			continue
		}
		events = append(events, ev.Type)
		if len(events) == 2 {
			break
		}
	}
	assert.Equal(t, []proxy.EventType{proxy.EventCreated, proxy.EventDestroyed}, events)
	assert.Equal(t, 1, decodes)
}

func TestStream_EndsWhenConnectionCloses(t *testing.T) {
	bus := proxytest.NewBus()
	stream, err := proxy.NewNetCfg(bus).NetworkChanges()
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, common.ErrStreamClosed)
}

func TestNetCfg_SubscriberList(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Reply(proxy.NetCfgPath, proxy.NetCfgInterface+".NotificationSubscriberList",
		[][]interface{}{{":1.42", uint32(proxy.NetCfgAll)}})

	subs, err := proxy.NewNetCfg(bus).NotificationSubscriberList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]proxy.NetCfgChange{":1.42": proxy.NetCfgAll}, subs)
}

func TestLogService_LogLevel(t *testing.T) {
	bus := proxytest.NewBus()
	bus.SetProperty(proxy.LogPath, "log_level", uint32(4))

	svc := proxy.NewLogService(bus)
	lvl, err := svc.LogLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, proxy.LogLevelVerb1, lvl)

	require.NoError(t, svc.SetLogLevel(context.Background(), proxy.LogLevelDebug))
	v, _ := bus.Property(proxy.LogPath, "log_level")
	assert.Equal(t, uint32(6), v)
}

func TestNetCfg_FetchInterfaceList(t *testing.T) {
	bus := proxytest.NewBus()
	want := []dbus.ObjectPath{"/net/openvpn/v3/netcfg/5", "/net/openvpn/v3/netcfg/6"}
	bus.Reply(proxy.NetCfgPath, proxy.NetCfgInterface+".FetchInterfaceList", want)

	got, err := proxy.NewNetCfg(bus).FetchInterfaceList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNetCfgNode_Properties(t *testing.T) {
	path := dbus.ObjectPath("/net/openvpn/v3/netcfg/5")
	bus := proxytest.NewBus()
	node := proxy.NewNetCfgNode(bus, path)

	tests := []struct {
		name     string
		property string
		value    interface{}
		get      func(context.Context) (interface{}, error)
	}{
		{"device name", "device_name", "tun0", func(ctx context.Context) (interface{}, error) { return node.DeviceName(ctx) }},
		{"owner", "owner", uint32(1000), func(ctx context.Context) (interface{}, error) { return node.Owner(ctx) }},
		{"acl", "acl", []uint32{1000, 1001}, func(ctx context.Context) (interface{}, error) { return node.ACL(ctx) }},
		{"active", "active", true, func(ctx context.Context) (interface{}, error) { return node.Active(ctx) }},
		{"mtu", "mtu", uint32(1500), func(ctx context.Context) (interface{}, error) { return node.MTU(ctx) }},
		{"layer", "layer", uint32(3), func(ctx context.Context) (interface{}, error) { return node.Layer(ctx) }},
		{"dns servers", "dns_name_servers", []string{"10.8.0.1"}, func(ctx context.Context) (interface{}, error) { return node.DNSNameServers(ctx) }},
		{"dns search", "dns_search_domains", []string{"corp.example.com"}, func(ctx context.Context) (interface{}, error) { return node.DNSSearchDomains(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.get(context.Background())
			assert.ErrorContains(t, err, "get property "+tt.property)

			bus.SetProperty(path, tt.property, tt.value)
			got, err := tt.get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestLogService_Attach(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Reply(proxy.LogPath, proxy.LogInterface+".Attach")
	bus.Reply(proxy.LogPath, proxy.LogInterface+".Detach")
	bus.SetProperty(proxy.LogPath, "log_method", "journald")
	bus.SetProperty(proxy.LogPath, "num_attached", uint32(2))

	ctx := context.Background()
	svc := proxy.NewLogService(bus)
	require.NoError(t, svc.Attach(ctx, proxy.SessionsInterface))
	require.NoError(t, svc.Detach(ctx, proxy.SessionsInterface))

	attach := bus.Calls(proxy.LogInterface + ".Attach")
	require.Len(t, attach, 1)
	assert.Equal(t, []interface{}{proxy.SessionsInterface}, attach[0].Args)
	assert.Len(t, bus.Calls(proxy.LogInterface+".Detach"), 1)

	method, err := svc.LogMethod(ctx)
	require.NoError(t, err)
	assert.Equal(t, "journald", method)

	n, err := svc.NumAttached(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
}
