package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	defer func() {
		os.Remove(".undercity.yaml")
		viper.Reset()
	}()

	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		os.Remove(".undercity.yaml")

		Load("")

		assert.Equal(t, 3, viper.GetInt("max_concurrent"))
		assert.Equal(t, "sonnet", viper.GetString("starting_tier"))
		assert.Equal(t, "opus", viper.GetString("max_tier"))
		assert.Equal(t, 0.10, viper.GetFloat64("opus_budget_pct"))
	})

	t.Run("env override", func(t *testing.T) {
		viper.Reset()
		os.Setenv("UNDERCITY_MAX_CONCURRENT", "5")
		defer os.Unsetenv("UNDERCITY_MAX_CONCURRENT")

		Load("")
		assert.Equal(t, 5, viper.GetInt("max_concurrent"))
	})
}
