package vpn

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
)

// Readiness failures callers act on, as rendered by remoteErrorText.
// The error name is part of the match.
const (
	backendNotReadyText        = "net.openvpn.v3.sessions.error: Backend VPN process is not ready"
	missingUserCredentialsText = "net.openvpn.v3.error.ready: Missing user credentials"
)

// remoteError pairs a recognized condition with the bus error it was
// recognized from, so both errors.Is(err, common.ErrBackendNotReady) and
// errors.As(err, &dbus.Error{}) work.
type remoteError struct {
	kind error
	err  error
}

func (e *remoteError) Error() string {
	return e.err.Error()
}

func (e *remoteError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// remoteErrorText renders a bus error as "<error name>: <message>".
func remoteErrorText(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name + ": " + de.Error()
	}
	var dep *dbus.Error
	if errors.As(err, &dep) && dep != nil {
		return dep.Name + ": " + dep.Error()
	}
	return err.Error()
}

// classifyReadyError maps the daemon's readiness failures onto
// common.ErrBackendNotReady and common.ErrMissingUserCredentials.
// Anything else is returned unchanged.
func classifyReadyError(err error) error {
	if err == nil {
		return nil
	}
	text := remoteErrorText(err)
	switch {
	case strings.Contains(text, backendNotReadyText):
		return &remoteError{kind: common.ErrBackendNotReady, err: err}
	case strings.Contains(text, missingUserCredentialsText):
		return &remoteError{kind: common.ErrMissingUserCredentials, err: err}
	}
	return err
}
