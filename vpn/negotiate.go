package vpn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yllada/openvpn3-go/common"
)

// CredentialProvider supplies values for user input slots.
type CredentialProvider interface {
	// Credential returns the value for slot. Returning an error aborts
	// WaitReady with that error.
	Credential(ctx context.Context, slot *UserInputSlot) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context, slot *UserInputSlot) (string, error)

func (f CredentialFunc) Credential(ctx context.Context, slot *UserInputSlot) (string, error) {
	return f(ctx, slot)
}

// StaticCredentials answers slots by variable name.
type StaticCredentials map[string]string

func (s StaticCredentials) Credential(_ context.Context, slot *UserInputSlot) (string, error) {
	v, ok := s[slot.VariableName()]
	if !ok {
		return "", fmt.Errorf("%w for %q", common.ErrNoCredential, slot.VariableName())
	}
	return v, nil
}

// ReadyPolicy controls how WaitReady polls.
type ReadyPolicy struct {
	// Interval is the wait between readiness checks while the backend is
	// starting. Zero means common.ReadyInterval.
	Interval time.Duration
	// MaxAttempts bounds the number of readiness checks. Zero means no
	// bound; the context is then the only limit.
	MaxAttempts int
}

// DefaultReadyPolicy polls every second until the context ends.
func DefaultReadyPolicy() ReadyPolicy {
	return ReadyPolicy{Interval: common.ReadyInterval}
}

// WaitReady polls Ready until the session can be connected. While the
// backend is starting it waits policy.Interval between checks. When the
// daemon asks for credentials, every pending slot is answered through
// provider and readiness is checked again right away. Any other failure
// is returned as is.
//
// A nil provider makes a credential request fail with
// common.ErrMissingUserCredentials.
func (s *Session) WaitReady(ctx context.Context, provider CredentialProvider, policy ReadyPolicy) error {
	interval := policy.Interval
	if interval <= 0 {
		interval = common.ReadyInterval
	}

	var last error
	for attempt := 1; ; attempt++ {
		if policy.MaxAttempts > 0 && attempt > policy.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", common.ErrRetriesExhausted, policy.MaxAttempts, last)
		}

		err := s.Ready(ctx)
		switch {
		case err == nil:
			s.logger.Debug("session %s ready after %d checks", s.Path(), attempt)
			return nil
		case errors.Is(err, common.ErrMissingUserCredentials):
			if provider == nil {
				return err
			}
			n, perr := s.provideCredentials(ctx, provider)
			if perr != nil {
				return perr
			}
			last = err
			if n > 0 {
				continue
			}
			// Requests not queued yet.
		case errors.Is(err, common.ErrBackendNotReady):
			last = err
		default:
			return err
		}

		if err := sleepContext(ctx, interval); err != nil {
			return err
		}
	}
}

// provideCredentials answers every pending slot and returns how many
// were answered.
func (s *Session) provideCredentials(ctx context.Context, provider CredentialProvider) (int, error) {
	slots, err := s.FetchUserInputSlots(ctx)
	if err != nil {
		return 0, err
	}
	for _, slot := range slots {
		value, err := provider.Credential(ctx, slot)
		if err != nil {
			return 0, fmt.Errorf("credential %s: %w", slot.VariableName(), err)
		}
		if err := slot.Provide(ctx, value); err != nil {
			return 0, fmt.Errorf("provide %s: %w", slot.VariableName(), err)
		}
		s.logger.Debug("session %s: provided %s", s.Path(), slot)
	}
	return len(slots), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
