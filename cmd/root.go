// =============================================================================
// Payment Command Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (converter)
//   ├── convertCmd      (converter convert)
//   ├── previewCmd      (converter preview)
//   ├── responsibleCmd  (converter responsible list|show|add|update|remove)
//   ├── templateCmd     (converter template)
//   ├── serveCmd        (converter serve)
//   └── versionCmd      (converter version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose, --data-dir)
//   2. Loading the configuration before any subcommand runs
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/config"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/registry"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// dataDir overrides data_dir from the configuration.
var dataDir string

// appConfig is loaded by the root command before any subcommand runs.
var appConfig *config.MainConfig

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converter",
	Short: "Payment command converter - spreadsheet to payroll XML",
	Long: `Converts payment-command spreadsheets (matricula, rubrica, valor, tipo,
trigrama) into the ISO-8859-1 XML payload read by the payroll system, and
manages the registry of responsible parties who sign each payload.

Example Usage:
  converter convert --file janeiro.xlsx --responsible 2 --folha 012025
  converter preview --file janeiro.xlsx
  converter responsible list
  converter serve --addr :8080`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)

	rootCmd.PersistentFlags().StringVar(
		&dataDir,
		"data-dir",
		"",
		"Directory holding the responsible registry (overrides data_dir)",
	)
}

// initConfig loads the configuration and sets up logging. An explicitly
// passed --config must exist; the default file is optional.
func initConfig(cmd *cobra.Command) error {
	required := cmd.Flags().Changed("config")

	cfg, err := config.LoadMainConfig(cfgFile, required)
	if err != nil {
		return err
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger.Initialize(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
		EnableColor: true,
	})

	appConfig = cfg
	logger.Debug("Configuration loaded", map[string]interface{}{
		"config":   cfgFile,
		"data_dir": cfg.DataDir,
	})
	return nil
}

// openRegistry opens the responsible registry in the configured data
// directory and reports a discarded document on stderr.
func openRegistry() (*registry.Registry, error) {
	reg, err := registry.New(registry.Options{Dir: appConfig.DataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if warn := reg.LoadWarning(); warn != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (defaults restored, previous file kept in %s)\n", warn, reg.BackupDir())
	}
	return reg, nil
}
