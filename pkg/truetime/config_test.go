package truetime

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().validate(); err != nil {
		t.Fatalf("DefaultConfig should validate cleanly, got %v", err)
	}
}

func TestNewConfigAppliesOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithTimeout(2*time.Second),
		WithMaxRetries(1),
		WithMaxConnections(10),
		WithMaxServers(2),
		WithSamplesPerAddress(1),
		WithPollInterval(time.Minute),
		WithMaxDispersion(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Timeout != 2*time.Second || cfg.MaxRetries != 1 || cfg.MaxConnections != 10 ||
		cfg.MaxServers != 2 || cfg.SamplesPerAddress != 1 || cfg.PollInterval != time.Minute ||
		cfg.MaxDispersion != 50*time.Millisecond {
		t.Fatalf("options did not apply: %+v", cfg)
	}
}

func TestNewConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"zero timeout", WithTimeout(0)},
		{"negative retries", WithMaxRetries(-1)},
		{"zero connections", WithMaxConnections(0)},
		{"zero servers", WithMaxServers(0)},
		{"zero samples per address", WithSamplesPerAddress(0)},
		{"zero poll interval", WithPollInterval(0)},
		{"zero max dispersion", WithMaxDispersion(0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewConfig(tc.opt); err == nil {
				t.Fatal("expected a validation error, got nil")
			}
		})
	}
}
