// Package credentials stores the upstream API tokens this process uses.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"igprofiler/pkg/config"
)

// Services with a stored token.
const (
	ServiceApify     = "apify"
	ServiceAnthropic = "anthropic"
)

// Services lists every known service.
var Services = []string{ServiceApify, ServiceAnthropic}

// Token is one stored API credential.
type Token struct {
	Service      string    `json:"service"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
	// Source names the backend the token was read from.
	Source string `json:"-"`
}

// Store is a credential backend
type Store interface {
	Name() string
	Set(t *Token) error
	Get(service string) (*Token, error)
	List() ([]*Token, error)
	Delete(service string) error
}

// Errors
var (
	ErrNotFound         = errors.New("credentials not found")
	ErrInvalid          = errors.New("invalid credentials")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// ValidService reports whether service is known.
func ValidService(service string) bool {
	for _, s := range Services {
		if s == service {
			return true
		}
	}
	return false
}

// Manager reads from stores in order and writes to the first that accepts.
type Manager struct {
	stores []Store
}

// NewManager uses the system keychain when available, then an encrypted file
// under dir, then the environment.
func NewManager(dir string) (*Manager, error) {
	var stores []Store

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}
	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"), dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over explicit backends.
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Set stores value for service.
func (m *Manager) Set(service, value string) (string, error) {
	if !ValidService(service) {
		return "", fmt.Errorf("%w: unknown service %q", ErrInvalid, service)
	}
	if value == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalid)
	}

	t := &Token{Service: service, Value: value, LastModified: time.Now()}
	var lastErr error
	for _, s := range m.stores {
		if err := s.Set(t); err == nil {
			return s.Name(), nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return "", ErrStoreUnavailable
}

// Get returns the token for service from the first store that has it.
func (m *Manager) Get(service string) (*Token, error) {
	for _, s := range m.stores {
		if t, err := s.Get(service); err == nil && t != nil {
			t.Source = s.Name()
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, service)
}

// List returns the newest token per service across stores, sorted by service.
func (m *Manager) List() []*Token {
	byService := make(map[string]*Token)
	for _, s := range m.stores {
		tokens, err := s.List()
		if err != nil {
			continue
		}
		for _, t := range tokens {
			if existing, ok := byService[t.Service]; !ok || t.LastModified.After(existing.LastModified) {
				t.Source = s.Name()
				byService[t.Service] = t
			}
		}
	}

	result := make([]*Token, 0, len(byService))
	for _, t := range byService {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Service < result[j].Service })
	return result
}

// Delete removes service from every store that has it.
func (m *Manager) Delete(service string) error {
	var deleted bool
	var lastErr error
	for _, s := range m.stores {
		if err := s.Delete(service); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}
	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, service)
}

// Apply fills tokens missing from cfg with stored ones. Configured values win.
func (m *Manager) Apply(cfg *config.Config) {
	if !cfg.ApifyConfigured() {
		if t, err := m.Get(ServiceApify); err == nil {
			cfg.Apify.Token = t.Value
		}
	}
	if !cfg.AnthropicConfigured() {
		if t, err := m.Get(ServiceAnthropic); err == nil {
			cfg.Anthropic.APIKey = t.Value
		}
	}
}

// ConfigDir returns the per-user igprofiler directory, creating it.
func ConfigDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igprofiler")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igprofiler")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "igprofiler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igprofiler")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Mask hides all but the first and last four characters.
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
