package proxy

import (
	"fmt"
	"strings"

	"github.com/yllada/openvpn3-go/common"
)

// Well-known service names, object paths and interfaces of the daemon.
const (
	ConfigurationBusName   = "net.openvpn.v3.configuration"
	ConfigurationPath      = "/net/openvpn/v3/configuration"
	ConfigurationInterface = "net.openvpn.v3.configuration"

	SessionsBusName   = "net.openvpn.v3.sessions"
	SessionsPath      = "/net/openvpn/v3/sessions"
	SessionsInterface = "net.openvpn.v3.sessions"

	LogBusName   = "net.openvpn.v3.log"
	LogPath      = "/net/openvpn/v3/log"
	LogInterface = "net.openvpn.v3.log"

	NetCfgBusName   = "net.openvpn.v3.netcfg"
	NetCfgPath      = "/net/openvpn/v3/netcfg"
	NetCfgInterface = "net.openvpn.v3.netcfg"
)

func unknownCode(kind string, v uint32) error {
	return fmt.Errorf("%w: unknown %s code %d", common.ErrDecode, kind, v)
}

func enumName(names []string, kind string, v uint32) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

// StatusMajor is the top-level classification of a status change.
type StatusMajor uint32

const (
	StatusMajorUnset StatusMajor = iota
	StatusMajorConfig
	StatusMajorConnection
	StatusMajorSession
	StatusMajorPKCS11
	StatusMajorProcess
)

var statusMajorNames = []string{
	"(unset)",
	"Configuration",
	"Connection",
	"Session",
	"PKCS#11",
	"Process",
}

func (m StatusMajor) String() string {
	return enumName(statusMajorNames, "StatusMajor", uint32(m))
}

// ParseStatusMajor converts a wire code, rejecting codes the daemon
// does not define.
func ParseStatusMajor(v uint32) (StatusMajor, error) {
	if int(v) >= len(statusMajorNames) {
		return 0, unknownCode("status major", v)
	}
	return StatusMajor(v), nil
}

// StatusMinor is the detailed status within a StatusMajor group.
type StatusMinor uint32

const (
	StatusMinorUnset StatusMinor = iota
	StatusMinorCfgError
	StatusMinorCfgOK
	StatusMinorCfgInlineMissing
	StatusMinorCfgRequireUser
	StatusMinorConnInit
	StatusMinorConnConnecting
	StatusMinorConnConnected
	StatusMinorConnDisconnecting
	StatusMinorConnDisconnected
	StatusMinorConnFailed
	StatusMinorConnAuthFailed
	StatusMinorConnReconnecting
	StatusMinorConnPausing
	StatusMinorConnPaused
	StatusMinorConnResuming
	StatusMinorConnDone
	StatusMinorSessNew
	StatusMinorSessBackendCompleted
	StatusMinorSessRemoved
	StatusMinorSessAuthUserpass
	StatusMinorSessAuthChallenge
	StatusMinorSessAuthURL
	StatusMinorPKCS11Sign
	StatusMinorPKCS11Encrypt
	StatusMinorPKCS11Decrypt
	StatusMinorPKCS11Verify
	StatusMinorProcStarted
	StatusMinorProcStopped
	StatusMinorProcKilled
)

var statusMinorNames = []string{
	"(unset)",
	"Configuration error",
	"Configuration OK",
	"Configuration missing inline data",
	"Configuration requires user input",
	"Client initialized",
	"Client connecting",
	"Client connected",
	"Client disconnecting",
	"Client disconnected",
	"Client connection failed",
	"Client authentication failed",
	"Client reconnect",
	"Client pausing connection",
	"Client connection paused",
	"Client connection resuming",
	"Client process exited",
	"New session created",
	"Backend Session Object completed",
	"Session deleted",
	"User/password authentication",
	"Challenge/response authentication",
	"URL authentication",
	"PKCS#11 Sign",
	"PKCS#11 Encrypt",
	"PKCS#11 Decrypt",
	"PKCS#11 Verify",
	"Process started",
	"Process stopped",
	"Process killed",
}

func (m StatusMinor) String() string {
	return enumName(statusMinorNames, "StatusMinor", uint32(m))
}

// ParseStatusMinor converts a wire code, rejecting unknown codes.
func ParseStatusMinor(v uint32) (StatusMinor, error) {
	if int(v) >= len(statusMinorNames) {
		return 0, unknownCode("status minor", v)
	}
	return StatusMinor(v), nil
}

// ClientAttentionType is the kind of user interaction a session needs.
type ClientAttentionType uint32

const (
	AttentionTypeUnset ClientAttentionType = iota
	AttentionTypeCredentials
	AttentionTypePKCS11
	AttentionTypeAccessPerm
)

var attentionTypeNames = []string{
	"(unset)",
	"User Credentials",
	"PKCS#11 operation",
	"Requesting access permission",
}

func (t ClientAttentionType) String() string {
	return enumName(attentionTypeNames, "ClientAttentionType", uint32(t))
}

// ParseClientAttentionType converts a wire code, rejecting unknown codes.
func ParseClientAttentionType(v uint32) (ClientAttentionType, error) {
	if int(v) >= len(attentionTypeNames) {
		return 0, unknownCode("attention type", v)
	}
	return ClientAttentionType(v), nil
}

// ClientAttentionGroup refines a ClientAttentionType.
type ClientAttentionGroup uint32

const (
	AttentionGroupUnset ClientAttentionGroup = iota
	AttentionGroupUserPassword
	AttentionGroupHTTPProxyCreds
	AttentionGroupPKPassphrase
	AttentionGroupChallengeStatic
	AttentionGroupChallengeDynamic
	AttentionGroupPKCS11Sign
	AttentionGroupPKCS11Decrypt
	AttentionGroupOpenURL
)

var attentionGroupNames = []string{
	"(unset)",
	"Username/password authentication",
	"HTTP proxy credentials",
	"Private key passphrase",
	"Static challenge",
	"Dynamic challenge",
	"PKCS#11 sign operation",
	"PKCS#11 decrypt operation",
	"Web authentication",
}

func (g ClientAttentionGroup) String() string {
	return enumName(attentionGroupNames, "ClientAttentionGroup", uint32(g))
}

// ParseClientAttentionGroup converts a wire code, rejecting unknown codes.
func ParseClientAttentionGroup(v uint32) (ClientAttentionGroup, error) {
	if int(v) >= len(attentionGroupNames) {
		return 0, unknownCode("attention group", v)
	}
	return ClientAttentionGroup(v), nil
}

// LogGroup identifies the daemon component a log line came from.
type LogGroup uint32

const (
	LogGroupUndefined LogGroup = iota
	LogGroupMasterProc
	LogGroupConfigMgr
	LogGroupSessionMgr
	LogGroupBackendStart
	LogGroupLogger
	LogGroupBackendProc
	LogGroupClient
	LogGroupNetCfg
	LogGroupExtService
)

var logGroupNames = []string{
	"[[UNDEFINED]]",
	"Master Process",
	"Config Manager",
	"Session Manager",
	"Backend Starter",
	"Logger",
	"Backend Session Process",
	"Client",
	"Network Configuration",
	"External Service",
}

func (g LogGroup) String() string {
	return enumName(logGroupNames, "LogGroup", uint32(g))
}

// ParseLogGroup converts a wire code, rejecting unknown codes.
func ParseLogGroup(v uint32) (LogGroup, error) {
	if int(v) >= len(logGroupNames) {
		return 0, unknownCode("log group", v)
	}
	return LogGroup(v), nil
}

// LogCategory is the severity attached to a log line.
type LogCategory uint32

const (
	LogCategoryUndefined LogCategory = iota
	LogCategoryDebug
	LogCategoryVerb2
	LogCategoryVerb1
	LogCategoryInfo
	LogCategoryWarn
	LogCategoryError
	LogCategoryCrit
	LogCategoryFatal
)

var logCategoryNames = []string{
	"[[UNDEFINED]]",
	"DEBUG",
	"VERB2",
	"VERB1",
	"INFO",
	"WARNING",
	"-- ERROR --",
	"!! CRITICAL !!",
	"**!! FATAL !!**",
}

func (c LogCategory) String() string {
	return enumName(logCategoryNames, "LogCategory", uint32(c))
}

// ParseLogCategory converts a wire code, rejecting unknown codes.
func ParseLogCategory(v uint32) (LogCategory, error) {
	if int(v) >= len(logCategoryNames) {
		return 0, unknownCode("log category", v)
	}
	return LogCategory(v), nil
}

// LogLevel is a verbosity threshold as used by the log_verbosity and
// log_level properties. Lower values are less verbose.
type LogLevel uint32

const (
	LogLevelFatal LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelVerb1
	LogLevelVerb2
	LogLevelDebug
)

var logLevelNames = []string{
	"FATAL",
	"ERROR",
	"WARNING",
	"INFO",
	"VERB1",
	"VERB2",
	"DEBUG",
}

func (l LogLevel) String() string {
	return enumName(logLevelNames, "LogLevel", uint32(l))
}

// ParseLogLevel converts a wire code, rejecting unknown codes.
func ParseLogLevel(v uint32) (LogLevel, error) {
	if int(v) >= len(logLevelNames) {
		return 0, unknownCode("log level", v)
	}
	return LogLevel(v), nil
}

// LogLevelFromName maps a name such as "info" or "VERB2" to a LogLevel.
func LogLevelFromName(s string) (LogLevel, error) {
	for i, n := range logLevelNames {
		if strings.EqualFold(n, s) {
			return LogLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// EventType tells whether a session manager event reports a created or
// destroyed session.
type EventType uint16

const (
	EventUnset EventType = iota
	EventCreated
	EventDestroyed
)

var eventTypeNames = []string{
	"Unset!",
	"Created",
	"Destroyed",
}

func (e EventType) String() string {
	return enumName(eventTypeNames, "EventType", uint32(e))
}

// ParseEventType converts a wire code, rejecting unknown codes.
func ParseEventType(v uint32) (EventType, error) {
	if int(v) >= len(eventTypeNames) {
		return 0, unknownCode("event type", v)
	}
	return EventType(v), nil
}

// NetCfgChange is a set of network change flags. It is used both as the
// type of a NetworkChange signal and as a subscription filter.
type NetCfgChange uint32

const (
	NetCfgDeviceAdded      NetCfgChange = 0x001
	NetCfgDeviceRemoved    NetCfgChange = 0x002
	NetCfgIPAddrAdded      NetCfgChange = 0x004
	NetCfgIPAddrRemoved    NetCfgChange = 0x008
	NetCfgRouteAdded       NetCfgChange = 0x010
	NetCfgRouteRemoved     NetCfgChange = 0x020
	NetCfgRouteExcluded    NetCfgChange = 0x040
	NetCfgDNSServerAdded   NetCfgChange = 0x080
	NetCfgDNSServerRemoved NetCfgChange = 0x100
	NetCfgDNSSearchAdded   NetCfgChange = 0x200
	NetCfgDNSSearchRemoved NetCfgChange = 0x400

	// NetCfgAll subscribes to every change type.
	NetCfgAll NetCfgChange = 0x7ff
)

var netCfgChangeNames = []string{
	"DEVICE_ADDED",
	"DEVICE_REMOVED",
	"IPADDR_ADDED",
	"IPADDR_REMOVED",
	"ROUTE_ADDED",
	"ROUTE_REMOVED",
	"ROUTE_EXCLUDED",
	"DNS_SERVER_ADDED",
	"DNS_SERVER_REMOVED",
	"DNS_SEARCH_ADDED",
	"DNS_SEARCH_REMOVED",
}

// String lists the set flags separated by "|".
func (c NetCfgChange) String() string {
	if c == 0 {
		return "NONE"
	}
	var parts []string
	for i, n := range netCfgChangeNames {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// ParseNetCfgChange converts a wire value, rejecting undefined bits.
func ParseNetCfgChange(v uint32) (NetCfgChange, error) {
	if v&^uint32(NetCfgAll) != 0 {
		return 0, unknownCode("network change", v)
	}
	return NetCfgChange(v), nil
}
