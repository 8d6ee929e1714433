package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"talksync/pkg/config"
	"talksync/pkg/logger"
	"talksync/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	configDir     string
	groupNames    []string
	logLevel      string
	logDir        string
	noColor       bool
	notifications bool
	noLogo        bool
)

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "talksync",
	Short: "Mirror group talk timelines into a local archive",
	Long: `talksync downloads new messages of the configured members of each group
and stores them as plain files, one directory per member.

Each run exchanges the group's refresh token for an access token, resumes
from the newest file in each member directory and writes text, pictures,
videos and voice messages under deterministic names.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
		if !noLogo && cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and exits with the
// code of the failing command
func Execute() {
	err := rootCmd.Execute()
	logger.Close()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			ui.PrintError(ee.err.Error())
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./talksync.yaml)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding <group>Config.json files")
	rootCmd.PersistentFlags().StringSliceVarP(&groupNames, "groups", "g", nil, "groups to process (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for daily and error log files")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", false, "enable run notifications")
	rootCmd.PersistentFlags().BoolVar(&noLogo, "no-logo", false, "do not print the logo")

	rootCmd.SetVersionTemplate(`talksync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags the user actually set
func globalFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if configDir != "" {
		flags["config-dir"] = configDir
	}
	if len(groupNames) > 0 {
		flags["groups"] = groupNames
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if logDir != "" {
		flags["log-dir"] = logDir
	}
	if cmd.Flags().Changed("notifications") {
		flags["notifications"] = notifications
	}
	return flags
}

// loadConfig loads the configuration and initializes the global logger.
// Failures map to exit code 1.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, &exitError{code: 1, err: fmt.Errorf("failed to load configuration: %w", err)}
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, &exitError{code: 1, err: fmt.Errorf("failed to initialize logging: %w", err)}
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Output, "talksync %s\ncommit: %s\nbuilt: %s\nGo Version: %s\nOS/Arch: %s/%s\n",
			version, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
