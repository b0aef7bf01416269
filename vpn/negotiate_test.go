package vpn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/proxy/proxytest"
)

const testSessionPath = dbus.ObjectPath("/net/openvpn/v3/sessions/a1b2c3d4")

func sessionMethod(name string) string {
	return proxy.SessionsInterface + "." + name
}

func notReadyError() error {
	return proxytest.Error("net.openvpn.v3.sessions.error", "Backend VPN process is not ready")
}

func missingCredentialsError() error {
	return proxytest.Error("net.openvpn.v3.error.ready", "Missing user credentials")
}

var fastPolicy = ReadyPolicy{Interval: time.Millisecond}

// credentialBackend simulates a backend waiting for username and
// password in the Credentials/UserPassword queue.
type credentialBackend struct {
	mu       sync.Mutex
	names    map[uint32]string
	provided map[uint32]string
	echoID   func(id uint32) uint32
	ready    int
}

func newCredentialBackend(bus *proxytest.Bus) *credentialBackend {
	b := &credentialBackend{
		names:    map[uint32]string{1: "username", 2: "password"},
		provided: make(map[uint32]string),
		echoID:   func(id uint32) uint32 { return id },
	}

	bus.Handle(testSessionPath, sessionMethod("Ready"), func([]interface{}) ([]interface{}, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.ready++
		if len(b.provided) < len(b.names) {
			return nil, missingCredentialsError()
		}
		return nil, nil
	})
	bus.Handle(testSessionPath, sessionMethod("UserInputQueueGetTypeGroup"), func([]interface{}) ([]interface{}, error) {
		return []interface{}{[][]interface{}{
			{uint32(proxy.AttentionTypeCredentials), uint32(proxy.AttentionGroupUserPassword)},
		}}, nil
	})
	bus.Handle(testSessionPath, sessionMethod("UserInputQueueCheck"), func([]interface{}) ([]interface{}, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		var ids []uint32
		for _, id := range []uint32{1, 2} {
			if _, done := b.provided[id]; !done {
				ids = append(ids, id)
			}
		}
		return []interface{}{ids}, nil
	})
	bus.Handle(testSessionPath, sessionMethod("UserInputQueueFetch"), func(args []interface{}) ([]interface{}, error) {
		id := args[2].(uint32)
		return []interface{}{
			args[0].(uint32), args[1].(uint32), b.echoID(id),
			b.names[id], "Auth " + b.names[id], id == 2,
		}, nil
	})
	bus.Handle(testSessionPath, sessionMethod("UserInputProvide"), func(args []interface{}) ([]interface{}, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.provided[args[2].(uint32)] = args[3].(string)
		return nil, nil
	})
	return b
}

func TestWaitReady_ProvidesEachSlotOnce(t *testing.T) {
	bus := proxytest.NewBus()
	backend := newCredentialBackend(bus)
	session := newSession(bus, testSessionPath, common.NopLogger{})

	asked := make(map[string]int)
	provider := CredentialFunc(func(_ context.Context, slot *UserInputSlot) (string, error) {
		asked[slot.VariableName()]++
		assert.Equal(t, proxy.TypeGroup{Type: proxy.AttentionTypeCredentials, Group: proxy.AttentionGroupUserPassword}, slot.TypeGroup())
		assert.Equal(t, slot.VariableName() == "password", slot.Masked())
		return "secret-" + slot.VariableName(), nil
	})

	err := session.WaitReady(context.Background(), provider, fastPolicy)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"username": 1, "password": 1}, asked)
	assert.Equal(t, map[uint32]string{1: "secret-username", 2: "secret-password"}, backend.provided)
	assert.Len(t, bus.Calls(sessionMethod("UserInputProvide")), 2)
	assert.Equal(t, 2, backend.ready)
}

func TestWaitReady_SlotMismatch(t *testing.T) {
	bus := proxytest.NewBus()
	backend := newCredentialBackend(bus)
	backend.echoID = func(id uint32) uint32 { return id + 10 }
	session := newSession(bus, testSessionPath, common.NopLogger{})

	called := false
	provider := CredentialFunc(func(context.Context, *UserInputSlot) (string, error) {
		called = true
		return "x", nil
	})

	err := session.WaitReady(context.Background(), provider, fastPolicy)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUserInputSlotMismatch)
	assert.False(t, called, "provider must not be asked for a mismatched slot")
	assert.Empty(t, bus.Calls(sessionMethod("UserInputProvide")))
}

func TestWaitReady_StopsWhenReady(t *testing.T) {
	bus := proxytest.NewBus()
	var checks atomic.Int32
	bus.Handle(testSessionPath, sessionMethod("Ready"), func([]interface{}) ([]interface{}, error) {
		if checks.Add(1) < 4 {
			return nil, notReadyError()
		}
		return nil, nil
	})
	session := newSession(bus, testSessionPath, common.NopLogger{})

	require.NoError(t, session.WaitReady(context.Background(), nil, fastPolicy))
	assert.Equal(t, int32(4), checks.Load())

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, bus.Calls(sessionMethod("Ready")), 4, "no readiness checks after success")
}

func TestWaitReady_MaxAttempts(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Handle(testSessionPath, sessionMethod("Ready"), func([]interface{}) ([]interface{}, error) {
		return nil, notReadyError()
	})
	session := newSession(bus, testSessionPath, common.NopLogger{})

	err := session.WaitReady(context.Background(), nil, ReadyPolicy{Interval: time.Millisecond, MaxAttempts: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRetriesExhausted)
	assert.ErrorIs(t, err, common.ErrBackendNotReady)
	assert.Len(t, bus.Calls(sessionMethod("Ready")), 3)
}

func TestWaitReady_ContextCanceled(t *testing.T) {
	bus := proxytest.NewBus()
	bus.Handle(testSessionPath, sessionMethod("Ready"), func([]interface{}) ([]interface{}, error) {
		return nil, notReadyError()
	})
	session := newSession(bus, testSessionPath, common.NopLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := session.WaitReady(ctx, nil, ReadyPolicy{Interval: time.Hour})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Len(t, bus.Calls(sessionMethod("Ready")), 1)
}

func TestWaitReady_OtherErrorsPassThrough(t *testing.T) {
	bus := proxytest.NewBus()
	denied := proxytest.Error("net.openvpn.v3.error.acl.denied", "Access denied")
	bus.Handle(testSessionPath, sessionMethod("Ready"), func([]interface{}) ([]interface{}, error) {
		return nil, denied
	})
	session := newSession(bus, testSessionPath, common.NopLogger{})

	err := session.WaitReady(context.Background(), nil, fastPolicy)
	assert.Equal(t, denied, err)
	assert.False(t, errors.Is(err, common.ErrBackendNotReady))
	assert.Len(t, bus.Calls(sessionMethod("Ready")), 1)
}

func TestWaitReady_CredentialsWithoutProvider(t *testing.T) {
	bus := proxytest.NewBus()
	newCredentialBackend(bus)
	session := newSession(bus, testSessionPath, common.NopLogger{})

	err := session.WaitReady(context.Background(), nil, fastPolicy)
	assert.ErrorIs(t, err, common.ErrMissingUserCredentials)
	assert.Empty(t, bus.Calls(sessionMethod("UserInputQueueGetTypeGroup")))
}

func TestWaitReady_ProviderErrorAborts(t *testing.T) {
	bus := proxytest.NewBus()
	newCredentialBackend(bus)
	session := newSession(bus, testSessionPath, common.NopLogger{})

	err := session.WaitReady(context.Background(), StaticCredentials{"username": "alice"}, fastPolicy)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNoCredential)
	assert.Contains(t, err.Error(), "password")
}

func TestStaticCredentials(t *testing.T) {
	slot := &UserInputSlot{req: proxy.UserInputRequest{Name: "username"}}
	creds := StaticCredentials{"username": "alice"}

	v, err := creds.Credential(context.Background(), slot)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	_, err = StaticCredentials{}.Credential(context.Background(), slot)
	assert.ErrorIs(t, err, common.ErrNoCredential)
}

func TestDefaultReadyPolicy(t *testing.T) {
	p := DefaultReadyPolicy()
	assert.Equal(t, time.Second, p.Interval)
	assert.Zero(t, p.MaxAttempts)
}
