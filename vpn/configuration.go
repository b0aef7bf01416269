package vpn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

// Configuration is an imported configuration profile. All remote
// operations of proxy.ConfigurationNode are available; FetchJSON decodes
// the document and NewTunnel starts a session from the profile.
type Configuration struct {
	*proxy.ConfigurationNode
	conn   proxy.Conn
	logger common.Logger
}

func newConfiguration(conn proxy.Conn, path dbus.ObjectPath, logger common.Logger) *Configuration {
	return &Configuration{
		ConfigurationNode: proxy.NewConfigurationNode(conn, path),
		conn:              conn,
		logger:            logger,
	}
}

// FetchJSON returns the profile as a decoded JSON document.
func (c *Configuration) FetchJSON(ctx context.Context) (map[string]interface{}, error) {
	doc, err := c.ConfigurationNode.FetchJSON(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrJSON, err)
	}
	return out, nil
}

// NewTunnel starts a session from this profile. The session must still
// be made ready (see Session.WaitReady) and connected.
func (c *Configuration) NewTunnel(ctx context.Context) (*Session, error) {
	path, err := proxy.NewSessionManager(c.conn).NewTunnel(ctx, c.Path())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("new tunnel %s from %s", path, c.Path())
	return newSession(c.conn, path, c.logger), nil
}

// OverrideValues returns the runtime overrides with their variant
// wrappers removed.
func (c *Configuration) OverrideValues(ctx context.Context) (map[string]interface{}, error) {
	raw, err := c.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v.Value()
	}
	return out, nil
}

// ConfigurationInfo is a snapshot of a profile's properties.
type ConfigurationInfo struct {
	Path         dbus.ObjectPath
	Name         string
	Owner        uint32
	Imported     time.Time
	LastUsed     time.Time
	UsedCount    uint32
	Valid        bool
	Readonly     bool
	SingleUse    bool
	Persistent   bool
	LockedDown   bool
	PublicAccess bool
	DCO          bool
}

// Info reads a snapshot of the profile.
func (c *Configuration) Info(ctx context.Context) (ConfigurationInfo, error) {
	info := ConfigurationInfo{Path: c.Path()}
	var err error

	if info.Name, err = c.Name(ctx); err != nil {
		return info, err
	}
	if info.Owner, err = c.Owner(ctx); err != nil {
		return info, err
	}
	imported, err := c.ImportTimestamp(ctx)
	if err != nil {
		return info, err
	}
	info.Imported = time.Unix(int64(imported), 0)
	lastUsed, err := c.LastUsedTimestamp(ctx)
	if err != nil {
		return info, err
	}
	if lastUsed > 0 {
		info.LastUsed = time.Unix(int64(lastUsed), 0)
	}

	flags := []struct {
		dst  *bool
		read func(context.Context) (bool, error)
	}{
		{&info.Valid, c.Valid},
		{&info.Readonly, c.Readonly},
		{&info.SingleUse, c.SingleUse},
		{&info.Persistent, c.Persistent},
		{&info.LockedDown, c.LockedDown},
		{&info.PublicAccess, c.PublicAccess},
		{&info.DCO, c.DCO},
	}
	for _, f := range flags {
		if *f.dst, err = f.read(ctx); err != nil {
			return info, err
		}
	}
	if info.UsedCount, err = c.UsedCount(ctx); err != nil {
		return info, err
	}
	return info, nil
}
