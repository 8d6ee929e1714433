package syncer

import (
	"time"

	"talksync/internal/downloader"
	"talksync/pkg/config"
	"talksync/pkg/errors"
	"talksync/pkg/materializer"
)

// GroupState is the position of a group in one run
type GroupState string

const (
	StateUnconfigured GroupState = "unconfigured"
	StateTokenPending GroupState = "token_pending"
	StateReady        GroupState = "ready"
	StateSyncing      GroupState = "syncing"
	StateDone         GroupState = "done"
	StateDisabled     GroupState = "disabled"
)

var allStates = []string{
	string(StateUnconfigured),
	string(StateTokenPending),
	string(StateReady),
	string(StateSyncing),
	string(StateDone),
	string(StateDisabled),
}

// MemberOutcome is the result of syncing one member
type MemberOutcome struct {
	Member config.Member
	// Since is the lower bound the timeline was fetched from
	Since    time.Time
	Stats    downloader.Stats
	Failures []materializer.FailedRecord
	Err      error
	Duration time.Duration
}

// OK reports whether the member sync finished without error. Media failures
// alone do not make a member fail.
func (o MemberOutcome) OK() bool {
	return o.Err == nil
}

// GroupReport is the outcome of one group
type GroupReport struct {
	Group   string
	State   GroupState
	Err     error
	Members []MemberOutcome
}

// Report summarizes a sync run
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Groups   []*GroupReport
}

// Group returns the report of group id, or nil
func (r *Report) Group(id string) *GroupReport {
	for _, g := range r.Groups {
		if g.Group == id {
			return g
		}
	}
	return nil
}

// DisabledGroups lists the groups that made no fetch attempt
func (r *Report) DisabledGroups() []string {
	var ids []string
	for _, g := range r.Groups {
		if g.State == StateDisabled {
			ids = append(ids, g.Group)
		}
	}
	return ids
}

// TokenFailures lists the groups disabled by a failed token exchange
func (r *Report) TokenFailures() []string {
	var ids []string
	for _, g := range r.Groups {
		if g.State == StateDisabled && errors.IsType(g.Err, errors.ErrorTypeTokenExchange) {
			ids = append(ids, g.Group)
		}
	}
	return ids
}

// FailedMembers counts member syncs that ended in an error
func (r *Report) FailedMembers() int {
	n := 0
	for _, g := range r.Groups {
		for _, m := range g.Members {
			if !m.OK() {
				n++
			}
		}
	}
	return n
}

// Totals adds up the member stats of every group
func (r *Report) Totals() downloader.Stats {
	var total downloader.Stats
	for _, g := range r.Groups {
		for _, m := range g.Members {
			total.Written += m.Stats.Written
			total.Files += m.Stats.Files
			total.Deleted += m.Stats.Deleted
			total.Skipped += m.Stats.Skipped
			total.Failed += m.Stats.Failed
		}
	}
	return total
}

// Success reports whether every group synced and no member failed
func (r *Report) Success() bool {
	return len(r.DisabledGroups()) == 0 && r.FailedMembers() == 0
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
