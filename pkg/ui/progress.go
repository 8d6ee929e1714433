package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker prints one line per finished member with a bar over all
// members of the run
type StatusTracker struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	done      int
	written   int
	failed    int
	startTime time.Time
}

// NewStatusTracker creates a tracker expecting total member syncs
func NewStatusTracker(out io.Writer, total int) *StatusTracker {
	if out == nil {
		out = Output
	}
	return &StatusTracker{out: out, total: total, startTime: time.Now()}
}

// MemberDone records a finished member and prints its line
func (st *StatusTracker) MemberDone(group, member string, written int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.done++
	st.written += written

	status := Green(fmt.Sprintf("+%d", written))
	if err != nil {
		st.failed++
		status = Red("failed")
	}
	fmt.Fprintf(st.out, "%s %s/%s %s\n", st.bar(), Cyan(group), member, status)
}

// bar renders done/total; a zero total renders an empty bar
func (st *StatusTracker) bar() string {
	const width = 20
	filled := 0
	if st.total > 0 {
		filled = st.done * width / st.total
		if filled > width {
			filled = width
		}
	}
	return fmt.Sprintf("[%s] %d/%d",
		strings.Repeat(ProgressBar, filled)+strings.Repeat(ProgressEmpty, width-filled),
		st.done, st.total)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.startTime)
}

// Counts returns finished members, stored messages and failed members
func (st *StatusTracker) Counts() (done, written, failed int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.done, st.written, st.failed
}
