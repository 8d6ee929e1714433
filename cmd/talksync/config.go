package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"talksync/pkg/auth"
	"talksync/pkg/config"
	"talksync/pkg/talk"
	"talksync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage talksync configuration.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (TALKSYNC_*, also read from .env)
  - Configuration file (talksync.yaml)
  - Default values

Members and refresh tokens of each group live in <config-dir>/<group>Config.json.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create talksync.yaml and an example group config.

The YAML file is written to the path given with --config, or to
./talksync.yaml. Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and every group config",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# talksync configuration
#
# Every option can also be set with a TALKSYNC_ environment variable,
# for example TALKSYNC_GROUPS=nogi,hina or TALKSYNC_LOG_LEVEL=debug.

groups:
  # Directory holding <group>Config.json
  config_dir: "config"
  # Groups synced by "talksync sync"
  enabled: ["nogi", "saku", "hina"]
  # Optional API endpoint overrides per group
  base_urls: {}

http:
  request_timeout: 30s
  download_timeout: 2m
  # 0 disables request pacing
  requests_per_second: 0
  burst: 1

sync:
  # Members synced at once within a group
  concurrent_members: 1
  parallel_groups: false
  # Remember failed downloads and fetch them again on the next run
  ledger: true
  # Exit with 2 on token failures and 3 on member failures
  strict: false

notifications:
  enabled: false
  on_complete: true
  on_error: true
  # terminal, desktop, both or none
  notification_type: "terminal"

logging:
  level: "info"
  # Receives <yyyyMMdd>_<tag>log.log and <tag>Error.log
  dir: "log"
  tag: "talksync"
  console: true

metrics:
  enabled: false
  textfile: "talksync.prom"

server:
  addr: ":8000"
  # Prefix of the media URLs listed by /messages
  file_base_url: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "talksync.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return &exitError{code: 1, err: fmt.Errorf("configuration file already exists: %s", configPath)}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to create configuration file: %w", err)}
	}
	ui.PrintSuccess("Configuration file created: " + configPath)

	dir := configDir
	if dir == "" {
		dir = config.DefaultConfig().Groups.ConfigDir
	}
	example := &config.GroupConfig{
		Group:    "nogi",
		RootPath: config.DefaultRootPath + "nogi/",
		Members:  []config.Member{{ID: "64", Name: "member64"}},
	}
	if _, err := os.Stat(config.GroupConfigPath(dir, example.Group)); err != nil {
		if err := example.Save(dir); err != nil {
			return &exitError{code: 1, err: fmt.Errorf("failed to create group config: %w", err)}
		}
		ui.PrintSuccess("Group config created: " + config.GroupConfigPath(dir, example.Group))
	}

	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. List the members of each group in its <group>Config.json")
	fmt.Fprintln(ui.Output, "2. Store each group's refresh token with 'talksync auth login <group>'")
	fmt.Fprintln(ui.Output, "3. Run 'talksync config validate', then 'talksync sync'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to load configuration: %w", err)}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to format configuration: %w", err)}
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Output)
	fmt.Fprint(ui.Output, string(data))

	fmt.Fprintln(ui.Output, "\nGroup configs:")
	for _, group := range cfg.Groups.Enabled {
		gc, err := config.LoadGroup(cfg.Groups.ConfigDir, group)
		if err != nil {
			fmt.Fprintf(ui.Output, "  %s: %s\n", group, ui.Red(err.Error()))
			continue
		}
		token := "(credential store)"
		if gc.Token != "" {
			token = auth.MaskToken(gc.Token)
		}
		fmt.Fprintf(ui.Output, "  %s: root %s, %d members, token %s\n",
			group, gc.RootPath, len(gc.Members), token)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("configuration validation failed: %w", err)}
	}

	var problems, warnings []string
	for _, group := range cfg.Groups.Enabled {
		if _, ok := talk.LookupGroup(group); !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown group", group))
			continue
		}
		gc, err := config.LoadGroup(cfg.Groups.ConfigDir, group)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if len(gc.Members) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: no members configured", group))
		}
		if gc.Token == "" && os.Getenv(auth.EnvVar(group)) == "" {
			warnings = append(warnings, fmt.Sprintf("%s: no token in group config; a stored credential is required", group))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Fprintf(ui.Output, "  - %s\n", w)
		}
	}
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(ui.Output, "  - %s\n", p)
		}
		return &exitError{code: 1}
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Groups: %v\n", cfg.Groups.Enabled)
	fmt.Fprintf(ui.Output, "  Group config dir: %s\n", cfg.Groups.ConfigDir)
	fmt.Fprintf(ui.Output, "  Concurrent members: %d\n", cfg.Sync.ConcurrentMembers)
	fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
