package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"talksync/internal/downloader"
	"talksync/pkg/checkpoint"
	"talksync/pkg/config"
	"talksync/pkg/errors"
	"talksync/pkg/logger"
	"talksync/pkg/materializer"
	"talksync/pkg/metrics"
	"talksync/pkg/ratelimit"
	"talksync/pkg/storage"
	"talksync/pkg/talk"
)

// Driver runs one sync over every enabled group
type Driver struct {
	config   *config.Config
	tokens   RefreshTokenSource
	metrics  *metrics.Recorder
	limiters *ratelimit.Registry
	resolver *checkpoint.Resolver
	logger   logger.Logger
	now      func() time.Time
	onMember func(group string, outcome MemberOutcome)
}

// Option configures a Driver
type Option func(*Driver)

// WithRefreshTokens sets the fallback source for refresh tokens
func WithRefreshTokens(src RefreshTokenSource) Option {
	return func(d *Driver) { d.tokens = src }
}

// WithMetrics records the run into r
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Driver) { d.metrics = r }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(d *Driver) { d.logger = log }
}

// WithClock replaces time.Now, used for the sentinel and the report
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithResolver replaces the checkpoint resolver
func WithResolver(r *checkpoint.Resolver) Option {
	return func(d *Driver) { d.resolver = r }
}

// WithMemberHook calls fn after each member of a group has been synced
func WithMemberHook(fn func(group string, outcome MemberOutcome)) Option {
	return func(d *Driver) { d.onMember = fn }
}

// New creates a Driver for cfg
func New(cfg *config.Config, opts ...Option) *Driver {
	d := &Driver{
		config:   cfg,
		limiters: ratelimit.NewRegistry(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst),
		resolver: checkpoint.NewResolver(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.GetLogger()
	}
	return d
}

// groupRun carries one group through the run
type groupRun struct {
	report  *GroupReport
	config  *config.GroupConfig
	client  *talk.Client
	refresh string
	token   string
	logger  logger.Logger
}

// Run acquires the access tokens of all enabled groups one at a time, then
// syncs every group that got one. Group and member failures are recorded in
// the report and never abort the run. The returned error is only set when
// ctx was cancelled.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	runID := logger.NewRunID()
	log := d.logger.WithField("run_id", runID)

	report := &Report{RunID: runID, Started: d.now()}

	logger.LogComponentStart(log, "sync", map[string]interface{}{
		"groups":             d.config.Groups.Enabled,
		"concurrent_members": d.config.Sync.ConcurrentMembers,
		"parallel_groups":    d.config.Sync.ParallelGroups,
	})

	runs := d.prepare(log, report)
	d.acquireTokens(ctx, log, runs)
	d.syncGroups(ctx, runs)

	report.Finished = d.now()
	d.metrics.FinishRun(report.Started, report.Finished, report.Success())
	if d.config.Metrics.Enabled && d.config.Metrics.Textfile != "" {
		if err := d.metrics.WriteTextfile(d.config.Metrics.Textfile); err != nil {
			log.WithError(err).Warn("Failed to write metrics")
		}
	}

	totals := report.Totals()
	log.InfoWithFields("Sync run finished", map[string]interface{}{
		"written":         totals.Written,
		"files":           totals.Files,
		"deleted":         totals.Deleted,
		"failed_media":    totals.Failed,
		"failed_members":  report.FailedMembers(),
		"disabled_groups": report.DisabledGroups(),
		"duration":        report.Duration().String(),
	})

	if err := ctx.Err(); err != nil {
		logger.LogComponentStop(log, "sync", "cancelled")
		return report, err
	}
	logger.LogComponentStop(log, "sync", "completed")
	return report, nil
}

// prepare loads the group configs. Groups whose config is missing or
// malformed are disabled here.
func (d *Driver) prepare(log logger.Logger, report *Report) []*groupRun {
	var runs []*groupRun
	seen := make(map[string]bool)

	for _, id := range d.config.Groups.Enabled {
		if seen[id] {
			continue
		}
		seen[id] = true

		run := &groupRun{
			report: &GroupReport{Group: id},
			logger: log.WithField("group", id),
		}
		report.Groups = append(report.Groups, run.report)
		d.setState(run, StateUnconfigured)

		group, ok := talk.LookupGroup(id)
		if !ok {
			d.disable(run, errors.New(errors.ErrorTypeConfigMalformed, fmt.Sprintf("unknown group %q", id)))
			continue
		}
		if base := d.config.Groups.BaseURLs[id]; base != "" {
			group = group.WithBaseURL(base)
		}

		gc, err := config.LoadGroup(d.config.Groups.ConfigDir, id)
		if err != nil {
			d.disable(run, err)
			continue
		}
		run.config = gc
		run.refresh = gc.Token

		if run.refresh == "" && d.tokens != nil {
			token, err := d.tokens.RefreshToken(id)
			if err != nil {
				run.logger.WithError(err).Debug("No stored refresh token")
			}
			run.refresh = token
		}

		run.client = talk.NewClient(group, &d.config.HTTP, run.logger)
		run.client.SetLimiter(d.limiters.Get(id))

		run.logger.InfoWithFields("Group config loaded", map[string]interface{}{
			"members":   len(gc.Members),
			"root_path": gc.RootPath,
		})
		d.setState(run, StateTokenPending)
		runs = append(runs, run)
	}
	return runs
}

// acquireTokens exchanges refresh tokens one group at a time
func (d *Driver) acquireTokens(ctx context.Context, log logger.Logger, runs []*groupRun) {
	tokens := talk.NewTokenManager(log)

	targets := make([]talk.TokenTarget, 0, len(runs))
	for _, run := range runs {
		targets = append(targets, talk.TokenTarget{Client: run.client, RefreshToken: run.refresh})
	}

	failures := tokens.AcquireAll(ctx, targets)

	for _, run := range runs {
		id := run.report.Group
		if err, failed := failures[id]; failed {
			d.metrics.TokenFailure(id)
			d.disable(run, err)
			continue
		}
		run.token, _ = tokens.Credentials().Get(id)
		d.setState(run, StateReady)
	}
}

// syncGroups syncs every Ready group, concurrently when parallel_groups is set
func (d *Driver) syncGroups(ctx context.Context, runs []*groupRun) {
	var ready []*groupRun
	for _, run := range runs {
		if run.report.State == StateReady {
			ready = append(ready, run)
		}
	}

	if !d.config.Sync.ParallelGroups {
		for _, run := range ready {
			if ctx.Err() != nil {
				return
			}
			d.syncGroup(ctx, run)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range ready {
		run := run
		g.Go(func() error {
			d.syncGroup(gctx, run)
			return nil
		})
	}
	_ = g.Wait()
}

// memberDetail is what a member sync reports beyond downloader.Stats
type memberDetail struct {
	since    time.Time
	failures []materializer.FailedRecord
}

// syncGroup runs every member of the group through the worker pool
func (d *Driver) syncGroup(ctx context.Context, run *groupRun) {
	d.setState(run, StateSyncing)

	members := make(map[string]config.Member, len(run.config.Members))
	jobs := make([]downloader.SyncJob, 0, len(run.config.Members))
	for _, m := range run.config.Members {
		members[m.Name] = m
		jobs = append(jobs, downloader.SyncJob{Group: run.report.Group, MemberID: m.ID, MemberName: m.Name})
	}

	var mu sync.Mutex
	details := make(map[string]memberDetail, len(jobs))

	pool := downloader.NewWorkerPool(ctx, d.config.Sync.ConcurrentMembers,
		func(ctx context.Context, job downloader.SyncJob) (downloader.Stats, error) {
			stats, detail, err := d.syncMember(ctx, run, members[job.MemberName])
			mu.Lock()
			details[job.MemberName] = detail
			mu.Unlock()
			return stats, err
		}, run.logger)

	byName := make(map[string]downloader.SyncResult, len(jobs))
	for _, res := range pool.Run(jobs) {
		byName[res.Job.MemberName] = res
	}

	// report members in config order
	for _, m := range run.config.Members {
		res := byName[m.Name]
		detail := details[m.Name]
		outcome := MemberOutcome{
			Member:   m,
			Since:    detail.since,
			Stats:    res.Stats,
			Failures: detail.failures,
			Err:      res.Error,
			Duration: res.Duration,
		}
		run.report.Members = append(run.report.Members, outcome)
		if d.onMember != nil {
			d.onMember(run.report.Group, outcome)
		}

		d.metrics.ObserveMember(run.report.Group, m.Name, metrics.MemberCounts(res.Stats), res.Error)
		if res.Error != nil {
			run.logger.WithError(res.Error).ErrorWithFields("Member sync failed", map[string]interface{}{
				"member":    m.Name,
				"member_id": m.ID,
			})
		}
	}

	d.setState(run, StateDone)
}

// syncMember resolves the checkpoint of one member directory, fetches the
// timeline from there and stores the new messages
func (d *Driver) syncMember(ctx context.Context, run *groupRun, m config.Member) (downloader.Stats, memberDetail, error) {
	var detail memberDetail
	log := run.logger.WithFields(map[string]interface{}{
		"member":    m.Name,
		"member_id": m.ID,
	})

	dir := run.config.MemberDir(m)
	store, err := storage.NewManager(dir)
	if err != nil {
		return downloader.Stats{}, detail, err
	}

	if n, err := store.RemoveStaleTemp(); err != nil {
		log.WithError(err).Warn("Failed to remove stale temporary files")
	} else if n > 0 {
		log.DebugWithFields("Removed stale temporary files", map[string]interface{}{"count": n})
	}

	created, err := store.EnsureSentinel(d.now())
	if err != nil {
		return downloader.Stats{}, detail, err
	}
	if created {
		log.Info("Created sentinel for new member directory")
	}

	cp, err := d.resolver.Resolve(dir)
	if err != nil {
		return downloader.Stats{}, detail, err
	}
	detail.since = cp.Time

	var (
		ledgerStore *checkpoint.LedgerStore
		ledger      *checkpoint.Ledger
	)
	if d.config.Sync.Ledger {
		ledgerStore = checkpoint.NewLedgerStore(dir, log)
		ledger, err = ledgerStore.Load()
		if err != nil {
			log.WithError(err).Warn("Ignoring unreadable ledger")
			ledger = checkpoint.NewLedger()
		}
		detail.since = checkpoint.LowerBound(cp.Time, ledger)
	}

	log.InfoWithFields("Fetching timeline", map[string]interface{}{
		"checkpoint": cp.Name,
		"since":      detail.since.Format(time.RFC3339),
	})

	messages, err := run.client.FetchMessages(ctx, run.token, m.ID, detail.since)
	if err != nil {
		return downloader.Stats{}, detail, err
	}

	result, err := materializer.New(store, run.client, log).Materialize(ctx, messages)
	detail.failures = result.Failed
	stats := downloader.Stats{
		Written: result.Written,
		Files:   result.Files,
		Deleted: result.Deleted,
		Skipped: result.Skipped,
		Failed:  len(result.Failed),
	}

	if ledger != nil {
		d.updateLedger(log, ledgerStore, ledger, messages, result)
	}
	return stats, detail, err
}

// updateLedger clears stored ids and records media failures. A pending id
// the timeline no longer returns also uses up an attempt, unless the page
// was full and it may simply lie beyond it.
func (d *Driver) updateLedger(log logger.Logger, store *checkpoint.LedgerStore, ledger *checkpoint.Ledger, messages []talk.Message, result materializer.Result) {
	now := d.now().UTC()

	for _, id := range result.Stored {
		ledger.Clear(id)
	}
	for _, f := range result.Failed {
		if !ledger.RecordFailure(f.ID, f.Type, f.PublishedAt, f.Err.Error(), now) {
			log.WarnWithFields("Giving up on message after repeated failures", map[string]interface{}{
				"id":       f.ID,
				"attempts": checkpoint.MaxAttempts,
			})
		}
	}

	if len(messages) < talk.TimelineCount {
		returned := make(map[string]bool, len(messages))
		for _, msg := range messages {
			returned[msg.ID.String()] = true
		}
		for _, rec := range ledger.Records() {
			if returned[rec.ID] {
				continue
			}
			if !ledger.RecordFailure(rec.ID, rec.Type, rec.PublishedAt, "not returned by timeline", now) {
				log.WarnWithFields("Giving up on message no longer in timeline", map[string]interface{}{
					"id": rec.ID,
				})
			}
		}
	}

	if err := store.Save(ledger); err != nil {
		log.WithError(err).Error("Failed to save ledger")
	}
}

func (d *Driver) setState(run *groupRun, state GroupState) {
	run.report.State = state
	d.metrics.SetGroupState(run.report.Group, string(state), allStates)
	run.logger.DebugWithFields("Group state changed", map[string]interface{}{
		"state": string(state),
	})
}

func (d *Driver) disable(run *groupRun, err error) {
	run.report.Err = err
	d.setState(run, StateDisabled)
	run.logger.WithError(err).ErrorWithFields("Group disabled", map[string]interface{}{
		"kind": string(errors.TypeOf(err)),
	})
}
