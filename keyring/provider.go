package keyring

import (
	"context"
	"errors"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/vpn"
)

// Provider answers user input slots from a credential store, keyed by
// profile and variable name, and asks next for anything not stored.
type Provider struct {
	Store   common.CredentialStore
	Profile string
	// Next supplies values the store does not have. Nil makes missing
	// values fail with common.ErrNoCredential.
	Next vpn.CredentialProvider
	// Save stores values obtained from Next. Masked values are only
	// saved when SaveMasked is also set.
	Save       bool
	SaveMasked bool
}

func (p *Provider) Credential(ctx context.Context, slot *vpn.UserInputSlot) (string, error) {
	key := Key(p.Profile, slot.VariableName())
	secret, err := p.Store.Get(key)
	if err == nil {
		common.LogDebug("Using stored credential %s", key)
		return secret, nil
	}
	if !errors.Is(err, common.ErrCredentialsNotFound) {
		common.LogWarn("Credential lookup for %s failed: %v", key, err)
	}

	if p.Next == nil {
		return "", common.ErrNoCredential
	}
	value, err := p.Next.Credential(ctx, slot)
	if err != nil {
		return "", err
	}

	if p.Save && (!slot.Masked() || p.SaveMasked) {
		if err := p.Store.Store(key, value); err != nil {
			common.LogWarn("Could not save credential %s: %v", key, err)
		}
	}
	return value, nil
}

// Forget removes every stored value for the given variable names.
func Forget(store common.CredentialStore, profile string, variables ...string) error {
	var errs []error
	for _, v := range variables {
		if err := store.Delete(Key(profile, v)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
