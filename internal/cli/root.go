// Package cli implements the revu command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sprite-ai/revu/internal/logging"
	"github.com/sprite-ai/revu/internal/model"
	"github.com/sprite-ai/revu/internal/remote"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "revu",
	Short: "AI-assisted code review and repair from the terminal",
	Long: `revu submits code to an analysis service, shows the findings grouped
by category and severity, and drives the fix cycle: pick issues, apply
fixes, re-analyze, and see how much the score moved.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute() error {
	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/revu/config.yaml)")
	rootCmd.PersistentFlags().String("service-url", "", "Analysis service base URL")
	rootCmd.PersistentFlags().StringP("mode", "m", "", "Analysis mode: full_scan, quality, security, code_smell")

	rootCmd.AddCommand(checkCmd, reviewCmd, fixCmd, serveCmd, versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "revu")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVU")
	viper.AutomaticEnv()

	viper.SetDefault("service.url", "http://localhost:5000")
	viper.SetDefault("service.api_key", "")
	viper.SetDefault("analysis.mode", string(model.ModeFullScan))
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")

	_ = viper.BindPFlag("service.url", rootCmd.PersistentFlags().Lookup("service-url"))
	_ = viper.BindPFlag("analysis.mode", rootCmd.PersistentFlags().Lookup("mode"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initLogger() {
	l, closer, err := logging.New(logging.Config{
		Level: viper.GetString("log.level"),
		File:  viper.GetString("log.file"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		logger = logging.Default()
		return
	}
	logger = l
	logCloser = closer
}

// newClient builds the analysis service client from config.
func newClient() *remote.Client {
	return remote.New(viper.GetString("service.url"), viper.GetString("service.api_key"), logger)
}

// analysisMode reads and validates the configured mode.
func analysisMode() (model.Mode, error) {
	return model.ParseMode(viper.GetString("analysis.mode"))
}
