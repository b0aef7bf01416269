package proxy

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// get reads a property of a fixed Go type.
func get[T any](ctx context.Context, s stub, name string) (T, error) {
	var v T
	err := s.property(ctx, name, &v)
	return v, err
}

// ConfigurationManager is the entry point of the configuration service.
type ConfigurationManager struct {
	stub
}

// NewConfigurationManager binds to the configuration manager object.
func NewConfigurationManager(conn Conn) *ConfigurationManager {
	return &ConfigurationManager{
		stub: newStub(conn, ConfigurationBusName, ConfigurationPath, ConfigurationInterface),
	}
}

// Import uploads a configuration profile and returns its object path.
// A single-use profile is removed by the daemon once a session has been
// started from it; a persistent one survives daemon restarts.
func (m *ConfigurationManager) Import(ctx context.Context, name, config string, singleUse, persistent bool) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := m.call(ctx, "Import", name, config, singleUse, persistent).Store(&path)
	return path, err
}

// FetchAvailableConfigs lists the profiles the caller may access.
func (m *ConfigurationManager) FetchAvailableConfigs(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := m.call(ctx, "FetchAvailableConfigs").Store(&paths)
	return paths, err
}

// LookupConfigName lists the profiles imported under name.
func (m *ConfigurationManager) LookupConfigName(ctx context.Context, name string) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := m.call(ctx, "LookupConfigName", name).Store(&paths)
	return paths, err
}

// TransferOwnership hands a profile to another user. Root only.
func (m *ConfigurationManager) TransferOwnership(ctx context.Context, path dbus.ObjectPath, uid uint32) error {
	return m.invoke(ctx, "TransferOwnership", path, uid)
}

// Version returns the service version string.
func (m *ConfigurationManager) Version(ctx context.Context) (string, error) {
	return get[string](ctx, m.stub, "version")
}

// ConfigurationNode is one imported configuration profile.
type ConfigurationNode struct {
	stub
}

// NewConfigurationNode binds to the profile at path.
func NewConfigurationNode(conn Conn, path dbus.ObjectPath) *ConfigurationNode {
	return &ConfigurationNode{
		stub: newStub(conn, ConfigurationBusName, path, ConfigurationInterface),
	}
}

// Fetch returns the profile as configuration file text.
func (n *ConfigurationNode) Fetch(ctx context.Context) (string, error) {
	var config string
	err := n.call(ctx, "Fetch").Store(&config)
	return config, err
}

// FetchJSON returns the profile as a JSON document.
func (n *ConfigurationNode) FetchJSON(ctx context.Context) (string, error) {
	var doc string
	err := n.call(ctx, "FetchJSON").Store(&doc)
	return doc, err
}

// Remove deletes the profile.
func (n *ConfigurationNode) Remove(ctx context.Context) error {
	return n.invoke(ctx, "Remove")
}

// Seal makes the profile permanently read-only.
func (n *ConfigurationNode) Seal(ctx context.Context) error {
	return n.invoke(ctx, "Seal")
}

// AccessGrant gives uid access to the profile.
func (n *ConfigurationNode) AccessGrant(ctx context.Context, uid uint32) error {
	return n.invoke(ctx, "AccessGrant", uid)
}

// AccessRevoke withdraws access from uid.
func (n *ConfigurationNode) AccessRevoke(ctx context.Context, uid uint32) error {
	return n.invoke(ctx, "AccessRevoke", uid)
}

// SetOption changes a single option in the profile.
func (n *ConfigurationNode) SetOption(ctx context.Context, option, value string) error {
	return n.invoke(ctx, "SetOption", option, value)
}

// SetOverride sets a runtime override. value is sent as a variant.
func (n *ConfigurationNode) SetOverride(ctx context.Context, name string, value interface{}) error {
	v, ok := value.(dbus.Variant)
	if !ok {
		v = dbus.MakeVariant(value)
	}
	return n.invoke(ctx, "SetOverride", name, v)
}

// UnsetOverride removes a runtime override.
func (n *ConfigurationNode) UnsetOverride(ctx context.Context, name string) error {
	return n.invoke(ctx, "UnsetOverride", name)
}

// Name is the profile name shown to users.
func (n *ConfigurationNode) Name(ctx context.Context) (string, error) {
	return get[string](ctx, n.stub, "name")
}

// SetName renames the profile.
func (n *ConfigurationNode) SetName(ctx context.Context, name string) error {
	return n.setProperty(ctx, "name", name)
}

// ACL lists the user IDs granted access besides the owner.
func (n *ConfigurationNode) ACL(ctx context.Context) ([]uint32, error) {
	return get[[]uint32](ctx, n.stub, "acl")
}

// DCO reports whether sessions use the kernel data channel offload.
func (n *ConfigurationNode) DCO(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "dco")
}

// SetDCO enables or disables data channel offload for new sessions.
func (n *ConfigurationNode) SetDCO(ctx context.Context, enabled bool) error {
	return n.setProperty(ctx, "dco", enabled)
}

// ImportTimestamp is when the profile was imported, in seconds since the epoch.
func (n *ConfigurationNode) ImportTimestamp(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, n.stub, "import_timestamp")
}

// LastUsedTimestamp is when a session last started from the profile; 0 if never.
func (n *ConfigurationNode) LastUsedTimestamp(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, n.stub, "last_used_timestamp")
}

// LockedDown reports whether non-owners are denied reading the profile contents.
func (n *ConfigurationNode) LockedDown(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "locked_down")
}

// SetLockedDown restricts reading the profile contents to the owner.
func (n *ConfigurationNode) SetLockedDown(ctx context.Context, locked bool) error {
	return n.setProperty(ctx, "locked_down", locked)
}

// Overrides returns the runtime overrides keyed by override name.
func (n *ConfigurationNode) Overrides(ctx context.Context) (map[string]dbus.Variant, error) {
	return get[map[string]dbus.Variant](ctx, n.stub, "overrides")
}

// Owner is the user ID owning the profile.
func (n *ConfigurationNode) Owner(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "owner")
}

// Persistent reports whether the profile survives daemon restarts.
func (n *ConfigurationNode) Persistent(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "persistent")
}

// PublicAccess reports whether every user may use the profile.
func (n *ConfigurationNode) PublicAccess(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "public_access")
}

// SetPublicAccess opens the profile to every user, or closes it again.
func (n *ConfigurationNode) SetPublicAccess(ctx context.Context, public bool) error {
	return n.setProperty(ctx, "public_access", public)
}

// Readonly reports whether the profile has been sealed.
func (n *ConfigurationNode) Readonly(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "readonly")
}

// SingleUse reports whether the profile is removed after one session.
func (n *ConfigurationNode) SingleUse(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "single_use")
}

// TransferOwnerSession reports whether sessions started from the profile
// are owned by the profile owner rather than the starting user.
func (n *ConfigurationNode) TransferOwnerSession(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "transfer_owner_session")
}

// SetTransferOwnerSession controls who owns sessions started from the profile.
func (n *ConfigurationNode) SetTransferOwnerSession(ctx context.Context, transfer bool) error {
	return n.setProperty(ctx, "transfer_owner_session", transfer)
}

// UsedCount is the number of sessions started from the profile.
func (n *ConfigurationNode) UsedCount(ctx context.Context) (uint32, error) {
	return get[uint32](ctx, n.stub, "used_count")
}

// Valid reports whether the daemon could parse the profile.
func (n *ConfigurationNode) Valid(ctx context.Context) (bool, error) {
	return get[bool](ctx, n.stub, "valid")
}
