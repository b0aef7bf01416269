package vpn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

// Client is the entry point for talking to the OpenVPN 3 services. It
// owns its bus connection: Close closes it, and every Configuration and
// Session obtained from the client uses it.
type Client struct {
	conn     proxy.Conn
	configs  *proxy.ConfigurationManager
	sessions *proxy.SessionManager
	logger   common.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger common.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client over an established connection.
func NewClient(conn proxy.Conn, opts ...Option) *Client {
	c := &Client{
		conn:     conn,
		configs:  proxy.NewConfigurationManager(conn),
		sessions: proxy.NewSessionManager(conn),
		logger:   common.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to bus and returns a client owning the connection.
func Dial(bus proxy.Bus, opts ...Option) (*Client, error) {
	conn, err := proxy.Connect(bus)
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", bus, err)
	}
	return NewClient(conn, opts...), nil
}

// Close closes the bus connection. Open streams end with
// common.ErrStreamClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Conn() proxy.Conn {
	return c.conn
}

func (c *Client) ConfigurationManager() *proxy.ConfigurationManager {
	return c.configs
}

func (c *Client) SessionManager() *proxy.SessionManager {
	return c.sessions
}

func (c *Client) NetCfg() *proxy.NetCfg {
	return proxy.NewNetCfg(c.conn)
}

func (c *Client) LogService() *proxy.LogService {
	return proxy.NewLogService(c.conn)
}

// ImportOptions controls how a profile is stored by the daemon.
type ImportOptions struct {
	// SingleUse profiles are removed once a session is started from them.
	SingleUse bool
	// Persistent profiles survive a restart of the configuration service.
	Persistent bool
}

// Import uploads configuration text. An empty name is replaced by a
// generated one.
func (c *Client) Import(ctx context.Context, name, config string, opts ImportOptions) (*Configuration, error) {
	if name == "" {
		name = common.AppName + "-" + uuid.NewString()[:8]
	}
	path, err := c.configs.Import(ctx, name, config, opts.SingleUse, opts.Persistent)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", name, err)
	}
	c.logger.Info("imported configuration %q as %s", name, path)
	return newConfiguration(c.conn, path, c.logger), nil
}

// Configuration binds to the profile at path without contacting the
// daemon.
func (c *Client) Configuration(path dbus.ObjectPath) *Configuration {
	return newConfiguration(c.conn, path, c.logger)
}

// Configurations lists the profiles available to the caller.
func (c *Client) Configurations(ctx context.Context) ([]*Configuration, error) {
	paths, err := c.configs.FetchAvailableConfigs(ctx)
	if err != nil {
		return nil, err
	}
	return c.configurationsAt(paths), nil
}

// LookupConfigurations lists the profiles imported under name.
func (c *Client) LookupConfigurations(ctx context.Context, name string) ([]*Configuration, error) {
	paths, err := c.configs.LookupConfigName(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.configurationsAt(paths), nil
}

func (c *Client) configurationsAt(paths []dbus.ObjectPath) []*Configuration {
	out := make([]*Configuration, 0, len(paths))
	for _, p := range paths {
		out = append(out, newConfiguration(c.conn, p, c.logger))
	}
	return out
}

// ResolveConfiguration finds a profile by object path or by name. A name
// must match exactly one profile.
func (c *Client) ResolveConfiguration(ctx context.Context, ref string) (*Configuration, error) {
	if isObjectPath(ref, proxy.ConfigurationPath) {
		return c.Configuration(dbus.ObjectPath(ref)), nil
	}
	found, err := c.LookupConfigurations(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("configuration %q: %w", ref, common.ErrNotFound)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("configuration %q: %w (%d profiles)", ref, common.ErrAmbiguousName, len(found))
}

// Session binds to the session at path without contacting the daemon.
func (c *Client) Session(path dbus.ObjectPath) *Session {
	return newSession(c.conn, path, c.logger)
}

// Sessions lists the sessions available to the caller.
func (c *Client) Sessions(ctx context.Context) ([]*Session, error) {
	paths, err := c.sessions.FetchAvailableSessions(ctx)
	if err != nil {
		return nil, err
	}
	return c.sessionsAt(paths), nil
}

// LookupSessions lists sessions started from profiles named configName.
func (c *Client) LookupSessions(ctx context.Context, configName string) ([]*Session, error) {
	paths, err := c.sessions.LookupConfigName(ctx, configName)
	if err != nil {
		return nil, err
	}
	return c.sessionsAt(paths), nil
}

// LookupInterface returns the session owning a tun device.
func (c *Client) LookupInterface(ctx context.Context, device string) (*Session, error) {
	path, err := c.sessions.LookupInterface(ctx, device)
	if err != nil {
		return nil, err
	}
	return c.Session(path), nil
}

func (c *Client) sessionsAt(paths []dbus.ObjectPath) []*Session {
	out := make([]*Session, 0, len(paths))
	for _, p := range paths {
		out = append(out, newSession(c.conn, p, c.logger))
	}
	return out
}

// ResolveSession finds a session by object path, by tun device name, or
// by the name of the profile it was started from.
func (c *Client) ResolveSession(ctx context.Context, ref string) (*Session, error) {
	if isObjectPath(ref, proxy.SessionsPath) {
		return c.Session(dbus.ObjectPath(ref)), nil
	}

	devices, err := c.sessions.FetchManagedInterfaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d == ref {
			return c.LookupInterface(ctx, ref)
		}
	}

	found, err := c.LookupSessions(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("session %q: %w", ref, common.ErrNotFound)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("session %q: %w (%d sessions)", ref, common.ErrAmbiguousName, len(found))
}

// ManagedInterfaces lists the tun devices owned by sessions.
func (c *Client) ManagedInterfaces(ctx context.Context) ([]string, error) {
	return c.sessions.FetchManagedInterfaces(ctx)
}

// SessionEvents subscribes to session creation and removal.
func (c *Client) SessionEvents() (*proxy.Stream[proxy.SessionEvent], error) {
	return c.sessions.SessionEvents()
}

// NetworkChanges subscribes to the network configuration service's
// change notifications. filter selects the change types; the
// subscription is removed again if subscribing the stream fails.
func (c *Client) NetworkChanges(ctx context.Context, filter proxy.NetCfgChange) (*proxy.Stream[proxy.NetworkChange], error) {
	netcfg := c.NetCfg()
	if err := netcfg.NotificationSubscribe(ctx, filter); err != nil {
		return nil, fmt.Errorf("subscribe to network changes: %w", err)
	}
	stream, err := netcfg.NetworkChanges()
	if err != nil {
		return nil, errors.Join(err, netcfg.NotificationUnsubscribe(ctx, ""))
	}
	return stream, nil
}

func isObjectPath(ref string, root dbus.ObjectPath) bool {
	return strings.HasPrefix(ref, string(root)+"/") && dbus.ObjectPath(ref).IsValid()
}
