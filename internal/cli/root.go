// Package cli provides the command-line interface for launchpad.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/launchpad/internal/config"
	"github.com/relicta-tech/launchpad/internal/container"
	"github.com/relicta-tech/launchpad/internal/security"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile    string
	verbose    bool
	outputJSON bool
	noColor    bool
	logLevel   string

	// Global config
	cfg *config.Config

	// configWarnings holds the warnings of the last validation.
	configWarnings []string

	// Logger
	logger *log.Logger

	// openApp is the container opened by the running command, if any.
	openApp *container.App

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Publish orchestrator for front-end projects",
	Long: `Launchpad drives front-end projects through their release workflow.

It validates publish requests, triggers builds, tracks task status,
writes built HTML into the runtime configuration store and rolls
production back to previously recorded artifacts.

Start the API with 'launchpad serve'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: launchpad.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig() error {
	loader := config.NewLoader()

	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	validator := config.NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	configWarnings = validator.Warnings()

	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if err := loadAndValidateConfig(); err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	logger.SetOutput(security.NewMaskedWriter(os.Stderr, security.NewMasker(cfg.Secrets()...)))
	configureLoggerFormat()
	configureLogLevel()
	slog.SetDefault(slog.New(logger))

	for _, w := range configWarnings {
		logger.Warn("configuration", "warning", w)
	}
	return nil
}

// configureLoggerFormat configures the logger format based on settings.
func configureLoggerFormat() {
	switch {
	case outputJSON || cfg.Log.Format == "json":
		logger.SetFormatter(log.JSONFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
}

// configureLogLevel sets the logger level based on configuration.
func configureLogLevel() {
	switch cfg.Log.Level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
}

// openContainer builds the dependency container for the loaded config and
// remembers it for Cleanup.
func openContainer(ctx context.Context) (*container.App, error) {
	app, err := container.NewInitialized(ctx, cfg,
		container.WithVersion(versionInfo.Version),
		container.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, err
	}
	openApp = app
	return app, nil
}

// Cleanup closes any open resources. Should be called before program exit.
func Cleanup() {
	if openApp != nil {
		if err := openApp.Close(); err != nil {
			logger.Warn("container close failed", "error", err)
		}
		openApp = nil
	}
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "launchpad %s\n", versionInfo.Version)
		if verbose {
			fmt.Fprintf(out, "  commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "  built:  %s\n", versionInfo.Date)
		}
	},
}

// Helper functions for output

func printSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("✓ "+msg))
}

func printWarning(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Warning.Render("⚠ "+msg))
}

func printTitle(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Title.Render(msg))
}

func printField(cmd *cobra.Command, label string, value any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s %v\n", styles.Subtle.Render(label+":"), value)
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return outputJSON
}
