package credentials

import (
	"os"
	"time"
)

// envVars maps services to the variables checked, in order.
var envVars = map[string][]string{
	ServiceApify:     {"IGPROFILER_APIFY_TOKEN", "APIFY_API_TOKEN"},
	ServiceAnthropic: {"IGPROFILER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
}

// EnvironmentStore reads tokens from environment variables. It is read-only.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

func (e *EnvironmentStore) Set(*Token) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Get(service string) (*Token, error) {
	for _, name := range envVars[service] {
		if v := os.Getenv(name); v != "" {
			return &Token{Service: service, Value: v, LastModified: time.Now()}, nil
		}
	}
	return nil, ErrNotFound
}

func (e *EnvironmentStore) List() ([]*Token, error) {
	var tokens []*Token
	for _, s := range Services {
		if t, err := e.Get(s); err == nil {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}
