package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"undercity/internal/config"
	"undercity/internal/telemetry"
)

// Exit codes named in the CLI contract.
const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitRateLimited   = 2
	exitEmergencyMode = 3
)

var exit = os.Exit
var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "undercity",
	Short:         "Undercity: autonomous multi-worker task orchestrator",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(exitRuntimeError)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(exitRuntimeError)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .undercity.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (overrides config state_dir)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
}

func initConfig() {
	config.Load(cfgFile)

	if err := config.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(exitRuntimeError)
	}

	logFile := ""
	if sd := viper.GetString("state_dir"); sd != "" {
		_ = os.MkdirAll(sd+"/logs", 0o755)
		logFile = sd + "/logs/current.log"
	}
	telemetry.InitLogger(viper.GetBool("verbose"), logFile)
}
