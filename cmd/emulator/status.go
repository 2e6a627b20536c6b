package main

import (
	"os"
	"strconv"

	"github.com/kstaniek/pedalnet/internal/emulator"
	"github.com/olekukonko/tablewriter"
)

// renderShutdownSummary prints a human-readable table of the counters the
// teacher logs as a single shutdown_summary key/value line, generalizing
// that structured-log line into a table for this process's interactive use.
func renderShutdownSummary(s emulator.Snapshot) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"sessions served", strconv.FormatUint(s.Sessions, 10)})
	table.Append([]string{"frames emitted", strconv.FormatUint(s.FramesEmitted, 10)})
	table.Append([]string{"malformed frames", strconv.FormatUint(s.Malformed, 10)})
	table.Append([]string{"sequence rejected", strconv.FormatUint(s.SequenceRejected, 10)})
	table.Render()
}
