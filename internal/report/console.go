package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	healthyMark = color.New(color.FgGreen).Sprint("✓")
	errorMark   = color.New(color.FgRed).Sprint("✗")
	timeoutMark = color.New(color.FgYellow).Sprint("⚠")
	bold        = color.New(color.Bold).Sprintf
	cyan        = color.New(color.FgCyan).Sprintf
)

// Render writes a human-readable summary of the report to w.
func Render(w io.Writer, r *Report) {
	fmt.Fprintln(w, bold("MCP SERVER DISCOVERY"))
	fmt.Fprintln(w, strings.Repeat("=", 50))

	for _, name := range r.SortedServerNames() {
		res := r.Servers[name]

		mark := errorMark
		switch res.Status {
		case StatusHealthy:
			mark = healthyMark
		case StatusTimeout:
			mark = timeoutMark
		}

		line := fmt.Sprintf("%s %-16s %-8s %5dms", mark, name, res.Status, res.DurationMs)
		if res.Status == StatusHealthy && res.ToolCount > 0 {
			line += fmt.Sprintf("  %d tools", res.ToolCount)
		}
		if res.ErrorMessage != "" {
			line += "  " + res.ErrorMessage
		}
		fmt.Fprintln(w, line)
	}

	if len(r.Overlaps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, cyan("Overlapping tool names:"))
		names := make([]string, 0, len(r.Overlaps))
		for name := range r.Overlaps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(r.Overlaps[name], ", "))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Servers: %d  Tools: %d  Overlaps: %d\n",
		r.Summary.ServersQueried, r.Summary.ToolsFound, r.Summary.OverlappingNames)
}
