package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ValidateConfig checks configuration values loaded by Load and returns an
// aggregated error describing every violation found.
func ValidateConfig() error {
	var errs []string

	if v := viper.GetInt("max_concurrent"); v <= 0 {
		errs = append(errs, fmt.Sprintf("max_concurrent must be positive, got: %d", v))
	}
	if hard, cur := viper.GetInt("hard_cap_concurrent"), viper.GetInt("max_concurrent"); hard > 0 && cur > hard {
		errs = append(errs, fmt.Sprintf("max_concurrent (%d) exceeds hard_cap_concurrent (%d)", cur, hard))
	}
	if v := viper.GetInt("max_attempts"); v <= 0 {
		errs = append(errs, fmt.Sprintf("max_attempts must be positive, got: %d", v))
	}
	if v := viper.GetInt("max_retries_per_tier"); v < 0 {
		errs = append(errs, fmt.Sprintf("max_retries_per_tier must not be negative, got: %d", v))
	}
	if v := viper.GetFloat64("opus_budget_pct"); v < 0 || v > 1 {
		errs = append(errs, fmt.Sprintf("opus_budget_pct must be within [0,1], got: %v", v))
	}
	if v := viper.GetFloat64("similarity_threshold"); v < 0 || v > 1 {
		errs = append(errs, fmt.Sprintf("similarity_threshold must be within [0,1], got: %v", v))
	}
	if v := viper.GetFloat64("conflict_confidence_threshold"); v < 0 || v > 1 {
		errs = append(errs, fmt.Sprintf("conflict_confidence_threshold must be within [0,1], got: %v", v))
	}
	if v := viper.GetInt("stuck_threshold_seconds"); v <= 0 {
		errs = append(errs, fmt.Sprintf("stuck_threshold_seconds must be positive, got: %d", v))
	}
	if v := viper.GetInt("health_tick_seconds"); v <= 0 {
		errs = append(errs, fmt.Sprintf("health_tick_seconds must be positive, got: %d", v))
	}
	if v := viper.GetInt("verify_timeout_seconds"); v <= 0 {
		errs = append(errs, fmt.Sprintf("verify_timeout_seconds must be positive, got: %d", v))
	}
	if v := viper.GetInt("max_merge_retry_count"); v <= 0 {
		errs = append(errs, fmt.Sprintf("max_merge_retry_count must be positive, got: %d", v))
	}
	if p := viper.GetInt("metrics_port"); viper.IsSet("metrics_port") && (p < 1 || p > 65535) {
		errs = append(errs, fmt.Sprintf("metrics_port must be between 1 and 65535, got: %d", p))
	}
	if tier := viper.GetString("starting_tier"); tier != "" && tierRank(tier) < 0 {
		errs = append(errs, fmt.Sprintf("starting_tier must be one of haiku, sonnet, opus, got: %q", tier))
	}
	if tier := viper.GetString("max_tier"); tier != "" && tierRank(tier) < 0 {
		errs = append(errs, fmt.Sprintf("max_tier must be one of haiku, sonnet, opus, got: %q", tier))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for i := 1; i < len(errs); i++ {
		msg += "\n  " + errs[i]
	}
	return fmt.Errorf("configuration validation failed:\n  %s", msg)
}

func tierRank(tier string) int {
	switch tier {
	case "haiku":
		return 0
	case "sonnet":
		return 1
	case "opus":
		return 2
	default:
		return -1
	}
}

// ValidateAndExit validates configuration and exits the process on failure.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
