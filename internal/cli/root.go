// Package cli implements the evidctl CLI commands.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends to register them via init()
	_ "github.com/evidlab-io/evidctl/pkg/state/backend/azurerm"
	_ "github.com/evidlab-io/evidctl/pkg/state/backend/gcs"
	_ "github.com/evidlab-io/evidctl/pkg/state/backend/local"
	_ "github.com/evidlab-io/evidctl/pkg/state/backend/s3"

	// Import providers to register them via init()
	_ "github.com/evidlab-io/evidctl/pkg/provider/memory"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "evidctl",
	Short: "Provision forensic evidence capture environments",
	Long: `evidctl builds isolated capture environments for digital evidence cases.

A capture template declares the resources a case needs (networks, analysis
VMs, evidence storage) with conditions and dependencies between them.
evidctl resolves the template against case parameters, schedules the
resources in dependency order, and journals every run per case.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.evidctl/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "local", "Journal backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "Backend configuration (key=value)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	// Bind to viper
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("backend-config", rootCmd.PersistentFlags().Lookup("backend-config"))
	viper.SetEnvPrefix("EVIDCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.evidctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
