package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/SharePicker/internal/config"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "sharepicker",
		Short: "SharePicker - capture thumbnails of open windows for screen sharing",
		Long: `SharePicker lists the windows open on a wlroots or Hyprland compositor,
captures a one-shot thumbnail of each and hands them to a window picker.

Features:
  • Discover toplevel windows through the foreign toplevel protocol
  • Capture each window once through the Hyprland toplevel export protocol
  • Stream window metadata and thumbnails over HTTP and websockets
  • Print or save the current window list from the command line`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sharepicker/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8686)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "force human readable logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	// SHAREPICKER_SERVER_PORT, SHAREPICKER_OVERLAY_CURSOR, ...
	viper.SetEnvPrefix("sharepicker")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file, applies flag and environment overrides
// in memory and initializes logging from the result.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, key := range config.Keys() {
		if !viper.IsSet(key) {
			continue
		}
		value := viper.GetString(key)
		if key == "server_port" && viper.GetInt(key) == 0 {
			continue
		}
		if key == "log_level" && value == "" {
			continue
		}
		if err := configMgr.Override(key, value); err != nil {
			return nil, fmt.Errorf("invalid %s override: %w", key, err)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Int("port", cfg.ServerPort).
		Msg("Configuration loaded")

	return configMgr, nil
}
