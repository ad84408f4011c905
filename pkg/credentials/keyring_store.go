package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igprofiler"
	keyringPrefix  = "token_"
)

// KeyringStore keeps tokens in the system keychain.
type KeyringStore struct{}

// NewKeyringStore fails when no keychain is reachable.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Set(t *Token) error {
	if t == nil || t.Service == "" {
		return ErrInvalid
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+t.Service, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Get(service string) (*Token, error) {
	if service == "" {
		return nil, ErrInvalid
	}
	data, err := keyring.Get(keyringService, keyringPrefix+service)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var t Token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &t, nil
}

// List probes the known services; go-keyring cannot enumerate keys.
func (k *KeyringStore) List() ([]*Token, error) {
	var tokens []*Token
	for _, s := range Services {
		if t, err := k.Get(s); err == nil {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (k *KeyringStore) Delete(service string) error {
	if service == "" {
		return ErrInvalid
	}
	if err := keyring.Delete(keyringService, keyringPrefix+service); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
