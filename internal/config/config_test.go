package config

import (
	"strings"
	"testing"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.VlanStart != 100 || cfg.VlanEnd != 4093 {
		t.Errorf("Unexpected vlan pool bounds [%d, %d)", cfg.VlanStart, cfg.VlanEnd)
	}
	if cfg.NetworkSize != 256 {
		t.Errorf("Expected network size 256, got %d", cfg.NetworkSize)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "inverted vlan bounds",
			mutate:  func(c *Config) { c.VlanStart = 200; c.VlanEnd = 100 },
			wantErr: "vlan pool bounds",
		},
		{
			name:    "vlan end above 4095",
			mutate:  func(c *Config) { c.VlanEnd = 5000 },
			wantErr: "vlan pool bounds",
		},
		{
			name:    "network size not power of two",
			mutate:  func(c *Config) { c.NetworkSize = 100 },
			wantErr: "power of two",
		},
		{
			name:    "bad private range",
			mutate:  func(c *Config) { c.PrivateRange = "not-a-cidr" },
			wantErr: "invalid private range",
		},
		{
			name:    "bad public range",
			mutate:  func(c *Config) { c.PublicRange = "10.0.0.0" },
			wantErr: "invalid public range",
		},
		{
			name:    "negative vpn clients",
			mutate:  func(c *Config) { c.CntVpnClients = -1 },
			wantErr: "vpn clients",
		},
		{
			name:    "private range too small for pool",
			mutate:  func(c *Config) { c.PrivateRange = "10.0.0.0/24" },
			wantErr: "too small",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ValidateSmallPoolFits(t *testing.T) {
	cfg := NewConfig()
	cfg.PrivateRange = "10.0.0.0/16"
	cfg.VlanStart = 100
	cfg.VlanEnd = 356
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected 256 vlans of 256 addresses to fit a /16, got %v", err)
	}
}
