package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WEBHOOK_SECRET", "whsec")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.CommissionRate != "0.10" || c.Currency != "BRL" {
		t.Errorf("money defaults = %q %q", c.CommissionRate, c.Currency)
	}
	if c.GatewayTimeout != 10*time.Second {
		t.Errorf("gateway timeout = %s", c.GatewayTimeout)
	}
	if c.RejectionWindow != 20 || c.RejectionMinSample != 5 || c.SpikeLimit != 5 {
		t.Errorf("anomaly defaults = %d %d %d", c.RejectionWindow, c.RejectionMinSample, c.SpikeLimit)
	}
	if p := c.RetryPolicy(); p.MaxRetries != 3 {
		t.Errorf("retry policy = %+v", p)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"rate above one", map[string]string{"COMMISSION_RATE": "1.2"}},
		{"unknown storage", map[string]string{"STORAGE_MODE": "mongo"}},
		{"omise without keys", map[string]string{"GATEWAY_PROVIDER": "omise"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			t.Setenv("WEBHOOK_SECRET", "whsec")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	tests := []struct {
		name      string
		jwt, hook string
	}{
		{"both empty", "", ""},
		{"empty jwt secret", "", "whsec"},
		{"empty webhook secret", "s3cret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", tt.jwt)
			t.Setenv("WEBHOOK_SECRET", tt.hook)
			if _, err := Load(); err == nil {
				t.Fatal("expected missing secret error")
			}
		})
	}
}
