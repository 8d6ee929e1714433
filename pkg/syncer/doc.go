// Package syncer drives a sync run: it loads the group configs, exchanges
// refresh tokens one group at a time and then brings every member directory
// of each enabled group up to date.
//
// Each group moves through
//
//	unconfigured -> token_pending -> ready -> syncing -> done
//
// and ends up disabled instead when its config cannot be loaded or its token
// exchange fails. A disabled group makes no timeline request.
//
// Members of a group run through a bounded worker pool, one job per member,
// so the steps for one member directory (checkpoint, fetch, materialize,
// ledger update) stay sequential. A failing member is logged and recorded in
// the Report; its siblings continue.
//
// Basic usage:
//
//	driver := syncer.New(cfg,
//		syncer.WithRefreshTokens(credManager),
//		syncer.WithMetrics(metrics.New()),
//	)
//	report, err := driver.Run(ctx)
package syncer
