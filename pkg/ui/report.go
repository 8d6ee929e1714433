package ui

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"talksync/pkg/syncer"
)

// PrintReport writes a per-group, per-member summary of a sync run
func PrintReport(w io.Writer, report *syncer.Report) {
	fmt.Fprintf(w, "\n%s %s\n", Magenta("[RUN]"), report.RunID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tMEMBER\tWRITTEN\tFILES\tDELETED\tSKIPPED\tFAILED\tSTATUS")

	for _, g := range report.Groups {
		if g.State == syncer.StateDisabled {
			reason := ""
			if g.Err != nil {
				reason = g.Err.Error()
			}
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t%s %s\n", g.Group, Red("disabled"), reason)
			continue
		}
		for _, m := range g.Members {
			status := Green("ok")
			if !m.OK() {
				status = Red("error: " + m.Err.Error())
			} else if m.Stats.Failed > 0 {
				status = Yellow("media pending")
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				g.Group, m.Member.Name,
				m.Stats.Written, m.Stats.Files, m.Stats.Deleted, m.Stats.Skipped, m.Stats.Failed,
				status)
		}
	}
	tw.Flush()

	totals := report.Totals()
	fmt.Fprintf(w, "\n%s %s, %s in %s\n",
		Cyan("Total:"), count(totals.Written, "message"), count(totals.Files, "file"),
		report.Duration().Round(time.Millisecond))
}

// ReportSummary is a one-line description used for notifications
func ReportSummary(report *syncer.Report) string {
	totals := report.Totals()
	summary := count(totals.Written, "new message")
	if n := len(report.DisabledGroups()); n > 0 {
		summary += ", " + count(n, "group") + " disabled"
	}
	if n := report.FailedMembers(); n > 0 {
		summary += ", " + count(n, "member") + " failed"
	}
	return summary
}

// count formats n with noun, adding "s" unless n is 1
func count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
