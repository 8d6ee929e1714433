package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"talksync/pkg/auth"
	"talksync/pkg/config"
	"talksync/pkg/logger"
	"talksync/pkg/metrics"
	"talksync/pkg/syncer"
	"talksync/pkg/ui"
)

const (
	exitTokenFailure  = 2
	exitMemberFailure = 3
)

var (
	// Sync command flags
	concurrent      int
	parallelGroups  bool
	strict          bool
	waitForKey      bool
	metricsTextfile string
	requestTimeout  time.Duration
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download new messages of every configured group",
	Long: `Run one sync pass over the enabled groups.

Tokens of all groups are exchanged first. A group whose config file is
missing or whose token exchange fails is skipped; the other groups are
synced normally. Within a group each member is fetched from its newest
stored file onwards.

Exit codes:
  0  run finished
  1  configuration could not be loaded
  2  (--strict) at least one group failed its token exchange
  3  (--strict) at least one member failed`,
	Example: `  # Sync every group from ./talksync.yaml
  talksync sync

  # Sync two groups with four members in flight
  talksync sync --groups nogi,hina --concurrent 4

  # Cron friendly: no logo, metrics for node_exporter, non-zero exit on failure
  talksync sync --no-logo --strict --metrics-textfile /var/lib/node_exporter/talksync.prom`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().IntVar(&concurrent, "concurrent", 0, "members synced at once per group (default from config)")
	syncCmd.Flags().BoolVar(&parallelGroups, "parallel-groups", false, "sync groups in parallel")
	syncCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a group or member fails")
	syncCmd.Flags().BoolVar(&waitForKey, "wait", false, "wait for a key press before exiting")
	syncCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	syncCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 0, "timeout of each API request (default from config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	flags := globalFlags(cmd)
	if concurrent > 0 {
		flags["concurrent"] = concurrent
	}
	if cmd.Flags().Changed("parallel-groups") {
		flags["parallel-groups"] = parallelGroups
	}
	if cmd.Flags().Changed("strict") {
		flags["strict"] = strict
	}
	if metricsTextfile != "" {
		flags["metrics-textfile"] = metricsTextfile
	}
	if requestTimeout > 0 {
		flags["request-timeout"] = requestTimeout
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if waitForKey {
		defer pressAnyKey()
	}

	log := logger.GetLogger()
	log.WithField("version", version).Info("talksync starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := ui.NewStatusTracker(nil, countMembers(cfg))
	driver := newDriver(cfg, log, metrics.New(), syncer.WithMemberHook(func(group string, o syncer.MemberOutcome) {
		tracker.MemberDone(group, o.Member.Name, o.Stats.Written, o.Err)
	}))

	report, runErr := driver.Run(ctx)

	notifier := ui.NewNotifier(cfg.Notifications)
	if report != nil {
		fmt.Fprintln(ui.Output)
		ui.PrintReport(ui.Output, report)
		if report.Success() {
			notifier.SendSuccess("Sync finished", ui.ReportSummary(report))
		} else {
			notifier.SendError("Sync finished with failures", ui.ReportSummary(report))
		}
	}
	if runErr != nil {
		return &exitError{code: 1, err: fmt.Errorf("sync interrupted: %w", runErr)}
	}

	if code := exitCode(report, cfg.Sync.Strict); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// newDriver wires the credential store and metrics into a sync driver. A
// credential manager that cannot be opened only removes that token source.
func newDriver(cfg *config.Config, log logger.Logger, rec *metrics.Recorder, extra ...syncer.Option) *syncer.Driver {
	opts := append([]syncer.Option{
		syncer.WithLogger(log),
		syncer.WithMetrics(rec),
	}, extra...)
	if creds, err := auth.NewManager(); err != nil {
		log.WithError(err).Warn("Credential store unavailable; using group config tokens only")
	} else {
		opts = append(opts, syncer.WithRefreshTokens(creds))
	}
	return syncer.New(cfg, opts...)
}

// exitCode maps a finished run to the process exit code. Without strict
// every finished run exits 0.
func exitCode(report *syncer.Report, strict bool) int {
	if !strict || report == nil {
		return 0
	}
	if len(report.TokenFailures()) > 0 {
		return exitTokenFailure
	}
	if report.FailedMembers() > 0 {
		return exitMemberFailure
	}
	return 0
}

// countMembers sums the members of the loadable group configs
func countMembers(cfg *config.Config) int {
	total := 0
	for _, group := range cfg.Groups.Enabled {
		gc, err := config.LoadGroup(cfg.Groups.ConfigDir, group)
		if err != nil {
			continue
		}
		total += len(gc.Members)
	}
	return total
}

// pressAnyKey blocks until a single key is pressed. It does nothing when
// stdin is not a terminal.
func pressAnyKey() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	fmt.Fprint(ui.Output, ui.Dim("Press any key to exit..."))
	state, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer func() {
		term.Restore(fd, state)
		fmt.Fprintln(ui.Output)
	}()
	buf := make([]byte, 1)
	os.Stdin.Read(buf)
}
