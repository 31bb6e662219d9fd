package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "valid configuration",
			setup: func() {
				viper.Set("max_concurrent", 3)
				viper.Set("hard_cap_concurrent", 5)
				viper.Set("max_attempts", 6)
				viper.Set("opus_budget_pct", 0.1)
				viper.Set("metrics_port", 9112)
			},
			wantError: false,
		},
		{
			name:      "invalid max_concurrent",
			setup:     func() { viper.Set("max_concurrent", 0) },
			wantError: true,
			errMsg:    "max_concurrent must be positive",
		},
		{
			name: "max_concurrent exceeds hard cap",
			setup: func() {
				viper.Set("max_concurrent", 10)
				viper.Set("hard_cap_concurrent", 5)
			},
			wantError: true,
			errMsg:    "exceeds hard_cap_concurrent",
		},
		{
			name:      "invalid opus_budget_pct",
			setup:     func() { viper.Set("opus_budget_pct", 1.5) },
			wantError: true,
			errMsg:    "opus_budget_pct must be within",
		},
		{
			name:      "invalid metrics_port",
			setup:     func() { viper.Set("metrics_port", 99999) },
			wantError: true,
			errMsg:    "metrics_port must be between 1 and 65535",
		},
		{
			name:      "invalid starting_tier",
			setup:     func() { viper.Set("starting_tier", "bronze") },
			wantError: true,
			errMsg:    "starting_tier must be one of",
		},
		{
			name: "multiple errors",
			setup: func() {
				viper.Set("max_attempts", -1)
				viper.Set("metrics_port", 0)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			viper.Set("max_concurrent", 3)
			viper.Set("max_attempts", 6)
			viper.Set("metrics_port", 9112)
			if tt.setup != nil {
				tt.setup()
			}

			err := ValidateConfig()
			if tt.wantError {
				if err == nil {
					t.Fatalf("ValidateConfig() expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateConfig() error = %v, want containing %v", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("ValidateConfig() unexpected error: %v", err)
			}
		})
	}
}
