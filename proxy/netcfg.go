package proxy

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// NetCfg is the network configuration service that creates tun devices
// and applies routes and DNS settings for sessions.
type NetCfg struct {
	stub
	conn Conn
}

// NewNetCfg binds to the network configuration service object.
func NewNetCfg(conn Conn) *NetCfg {
	return &NetCfg{
		stub: newStub(conn, NetCfgBusName, NetCfgPath, NetCfgInterface),
		conn: conn,
	}
}

// FetchInterfaceList lists the virtual network interface objects.
func (n *NetCfg) FetchInterfaceList(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := n.call(ctx, "FetchInterfaceList").Store(&paths)
	return paths, err
}

// NotificationSubscribe asks for NetworkChange signals matching filter.
func (n *NetCfg) NotificationSubscribe(ctx context.Context, filter NetCfgChange) error {
	return n.invoke(ctx, "NotificationSubscribe", uint32(filter))
}

// NotificationUnsubscribe drops the subscription of the given bus name;
// an empty name drops the caller's own.
func (n *NetCfg) NotificationUnsubscribe(ctx context.Context, subscriber string) error {
	return n.invoke(ctx, "NotificationUnsubscribe", subscriber)
}

// NotificationSubscriberList maps subscriber bus names to their filters.
// Root only.
func (n *NetCfg) NotificationSubscriberList(ctx context.Context) (map[string]NetCfgChange, error) {
	var raw []struct {
		Subscriber string
		Filter     uint32
	}
	if err := n.call(ctx, "NotificationSubscriberList").Store(&raw); err != nil {
		return nil, err
	}
	subs := make(map[string]NetCfgChange, len(raw))
	for _, r := range raw {
		f, err := ParseNetCfgChange(r.Filter)
		if err != nil {
			return nil, err
		}
		subs[r.Subscriber] = f
	}
	return subs, nil
}

// GlobalDNSServers lists the name servers applied system wide.
func (n *NetCfg) GlobalDNSServers(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, n.stub, "global_dns_servers")
}

// GlobalDNSSearch lists the search domains applied system wide.
func (n *NetCfg) GlobalDNSSearch(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, n.stub, "global_dns_search")
}

// LogLevel is the service's log verbosity.
func (n *NetCfg) LogLevel(ctx context.Context) (LogLevel, error) {
	v, err := get[uint32](ctx, n.stub, "log_level")
	if err != nil {
		return 0, err
	}
	return ParseLogLevel(v)
}

// Version returns the service version string.
func (n *NetCfg) Version(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "version")
}

// NetworkChanges subscribes to NetworkChange signals. Nothing arrives
// until NotificationSubscribe has been called.
func (n *NetCfg) NetworkChanges() (*Stream[NetworkChange], error) {
	return subscribe(n.conn, NetCfgBusName, NetCfgPath, NetCfgInterface, "NetworkChange", decodeNetworkChangeSignal)
}

// NetCfgNode is one virtual network interface.
type NetCfgNode struct {
	stub
}

// NewNetCfgNode binds to the interface object at path.
func NewNetCfgNode(conn Conn, path dbus.ObjectPath) *NetCfgNode {
	return &NetCfgNode{
		stub: newStub(conn, NetCfgBusName, path, NetCfgInterface),
	}
}

// DeviceName is the kernel name of the device, such as "tun0".
func (n *NetCfgNode) DeviceName(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "device_name")
}

// Owner is the user ID of the session owning the device.
func (n *NetCfgNode) Owner(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "owner")
}

// ACL lists the user IDs granted access besides the owner.
func (n *NetCfgNode) ACL(ctx context.Context) ([]uint32, error) {
	return get[[]uint32](ctx, n.stub, "acl")
}

// Active reports whether the device has been brought up.
func (n *NetCfgNode) Active(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "active")
}

// MTU is the device's maximum transmission unit.
func (n *NetCfgNode) MTU(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "mtu")
}

// Layer is 3 for tun and 2 for tap devices.
func (n *NetCfgNode) Layer(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "layer")
}

// DNSNameServers lists the name servers pushed for this device.
func (n *NetCfgNode) DNSNameServers(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, n.stub, "dns_name_servers")
}

// DNSSearchDomains lists the search domains pushed for this device.
func (n *NetCfgNode) DNSSearchDomains(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, n.stub, "dns_search_domains")
}
