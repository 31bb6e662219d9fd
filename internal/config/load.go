package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes configuration from file, environment, and defaults.
func Load(cfgFile string) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; ignore absence
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".undercity")
	}

	viper.SetEnvPrefix("UNDERCITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("state_dir", ".undercity")
	viper.SetDefault("main_branch", "")
	viper.SetDefault("max_concurrent", 3)
	viper.SetDefault("hard_cap_concurrent", 5)
	viper.SetDefault("starting_tier", "sonnet")
	viper.SetDefault("max_tier", "opus")
	viper.SetDefault("max_attempts", 6)
	viper.SetDefault("max_retries_per_tier", 3)
	viper.SetDefault("max_review_passes_per_tier", 1)
	viper.SetDefault("max_opus_review_passes", 2)
	viper.SetDefault("review_passes_enabled", true)
	viper.SetDefault("auto_commit", true)
	viper.SetDefault("push_on_success", false)
	viper.SetDefault("decompose_on", true)
	viper.SetDefault("max_merge_retry_count", 3)
	viper.SetDefault("opus_budget_pct", 0.10)
	viper.SetDefault("rate_limit_five_hour_pause_pct", 0.95)
	viper.SetDefault("rate_limit_weekly_pause_pct", 0.90)
	viper.SetDefault("similarity_threshold", 0.7)
	viper.SetDefault("conflict_confidence_threshold", 0.5)
	viper.SetDefault("stuck_threshold_seconds", 300)
	viper.SetDefault("health_tick_seconds", 60)
	viper.SetDefault("max_recovery_attempts", 1)
	viper.SetDefault("verify_timeout_seconds", 300)
	viper.SetDefault("max_emergency_fix_attempts", 3)
	viper.SetDefault("worktrees_ring_size", 20)
	viper.SetDefault("metrics_port", 9112)
	viper.SetDefault("verbose", false)
	viper.SetDefault("git_user_email", "undercity-agent@example.com")
	viper.SetDefault("git_user_name", "Undercity Agent")

	viper.SetDefault("notifications.slack.enabled", os.Getenv("SLACK_BOT_USER_TOKEN") != "")
	viper.SetDefault("notifications.slack.channel", "#general")
	viper.SetDefault("notifications.slack.events.on_batch_complete", true)
	viper.SetDefault("notifications.slack.events.on_task_failed", true)
	viper.SetDefault("notifications.slack.events.on_emergency", true)
	viper.SetDefault("notifications.slack.events.on_user_input_needed", true)
	viper.SetDefault("notifications.slack.events.on_drain_complete", true)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		if _, statErr := os.Stat(".undercity.yaml"); os.IsNotExist(statErr) {
			if writeErr := viper.SafeWriteConfigAs(".undercity.yaml"); writeErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to create default config file: %v\n", writeErr)
			} else {
				fmt.Println("created default configuration file: .undercity.yaml")
			}
		}
	}
}

// SkipEmergencyGateEnv disables the emergency-mode admission gate, for tests.
const SkipEmergencyGateEnv = "UNDERCITY_SKIP_EMERGENCY_GATE"

// AgentCredentialsEnv names the env var carrying opaque agent-transport credentials.
const AgentCredentialsEnv = "UNDERCITY_AGENT_CREDENTIALS"
