package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var states = []string{"ready", "done", "disabled"}

func TestObserveMember(t *testing.T) {
	r := New()

	r.ObserveMember("nogi", "alice", MemberCounts{Written: 3, Files: 4, Deleted: 1}, nil)
	r.ObserveMember("nogi", "alice", MemberCounts{Written: 2, Files: 2, Failed: 1}, nil)
	r.ObserveMember("nogi", "bob", MemberCounts{}, errors.New("fetch failed"))

	assert.Equal(t, 5.0, testutil.ToFloat64(r.messages.WithLabelValues("nogi", "alice", OutcomeWritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messages.WithLabelValues("nogi", "alice", OutcomeDeleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messages.WithLabelValues("nogi", "alice", OutcomeFailed)))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.files.WithLabelValues("nogi", "alice")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.memberSyncs.WithLabelValues("nogi", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.memberSyncs.WithLabelValues("nogi", "error")))
}

func TestSetGroupStateIsExclusive(t *testing.T) {
	r := New()

	r.SetGroupState("saku", "ready", states)
	r.SetGroupState("saku", "disabled", states)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.groupState.WithLabelValues("saku", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.groupState.WithLabelValues("saku", "disabled")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder

	r.ObserveMember("nogi", "alice", MemberCounts{Written: 1}, nil)
	r.TokenFailure("nogi")
	r.SetGroupState("nogi", "done", states)
	r.FinishRun(time.Now(), time.Now(), true)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.TokenFailure("hina")
	started := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	r.FinishRun(started, started.Add(90*time.Second), false)

	path := filepath.Join(t.TempDir(), "talksync.prom")
	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(content)
	assert.Contains(t, out, `talksync_token_exchange_failures_total{group="hina"} 1`)
	assert.Contains(t, out, "talksync_last_run_duration_seconds 90")
	assert.Contains(t, out, "talksync_last_run_success 0")
}
