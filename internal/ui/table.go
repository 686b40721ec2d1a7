package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rileyhilliard/fleetwatch/internal/monitor"
	"github.com/rileyhilliard/fleetwatch/internal/monitor/parsers"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-interactive Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		// header text plus its bottom border
		table.WithHeight(len(rows)+2),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so the selected row must look like any other.
	s.Selected = s.Cell

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a table to a string, without trailing blank lines.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	view := NewTable(columns, tableRows).View()

	lines := strings.Split(view, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

var fleetColumns = []TableColumn{
	{Title: "", Width: 1},
	{Title: "HOST", Width: 18},
	{Title: "CPU", Width: 6},
	{Title: "MEMORY", Width: 20},
	{Title: "DISK /", Width: 20},
	{Title: "NET RX/TX", Width: 20},
	{Title: "FAILED", Width: 7},
}

// RenderFleetTable renders snap as a per-host table followed by the
// failure reasons. now is used for the snapshot age.
func RenderFleetTable(snap *monitor.FleetSnapshot, now time.Time) string {
	if snap == nil {
		return lipgloss.NewStyle().Foreground(ColorMuted).Render("No snapshot published yet")
	}

	var b strings.Builder
	b.WriteString(renderSummary(snap, now))
	b.WriteString("\n")
	if avg := renderAverages(snap); avg != "" {
		b.WriteString(avg)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(snap.Hosts) == 0 {
		b.WriteString("No hosts configured\n")
		return b.String()
	}

	ids := snap.HostIDs()
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, hostRow(snap.Hosts[id]))
	}
	b.WriteString(RenderSimpleTable(fleetColumns, rows))
	b.WriteString("\n")

	if failures := renderFailures(snap, ids); failures != "" {
		b.WriteString("\n")
		b.WriteString(failures)
	}
	return b.String()
}

func renderSummary(snap *monitor.FleetSnapshot, now time.Time) string {
	healthy, degraded, down := snap.Counts()
	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	counts := []string{
		lipgloss.NewStyle().Foreground(ColorSuccess).Render(fmt.Sprintf("%d healthy", healthy)),
		lipgloss.NewStyle().Foreground(ColorWarning).Render(fmt.Sprintf("%d degraded", degraded)),
		lipgloss.NewStyle().Foreground(ColorError).Render(fmt.Sprintf("%d down", down)),
	}

	age := humanize.RelTime(snap.Timestamp, now, "ago", "from now")
	return fmt.Sprintf("%s  %s  %s",
		lipgloss.NewStyle().Bold(true).Render("Fleet"),
		strings.Join(counts, ", "),
		muted.Render(fmt.Sprintf("(cycle %s, %s, took %s)", shortID(snap.CycleID), age, snap.Duration.Round(time.Millisecond))))
}

// renderAverages shows mean CPU, memory and disk usage across the hosts
// that reported each, e.g. "cpu ███░░░░░░░  34%".
func renderAverages(snap *monitor.FleetSnapshot) string {
	var cpu, mem, disk []float64
	for _, h := range snap.Hosts {
		for _, m := range h.Metrics {
			switch v := m.(type) {
			case parsers.CPU:
				cpu = append(cpu, v.BusyPercent)
			case parsers.Memory:
				if v.TotalBytes > 0 {
					mem = append(mem, float64(v.UsedBytes)/float64(v.TotalBytes)*100)
				}
			case parsers.Disk:
				disk = append(disk, v.UsePercent)
			}
		}
	}

	var parts []string
	for _, avg := range []struct {
		label  string
		values []float64
	}{
		{"cpu", cpu},
		{"mem", mem},
		{"disk", disk},
	} {
		if len(avg.values) == 0 {
			continue
		}
		var sum float64
		for _, v := range avg.values {
			sum += v
		}
		parts = append(parts, avg.label+" "+UsageBar(sum/float64(len(avg.values)), 10))
	}
	if len(parts) == 0 {
		return ""
	}
	return "avg  " + strings.Join(parts, "   ")
}

func hostRow(h monitor.HostSnapshot) []string {
	state := SymbolHealthy
	switch {
	case h.Down():
		state = SymbolDown
	case h.Degraded():
		state = SymbolDegraded
	}

	row := []string{state, h.HostID, SymbolMissing, SymbolMissing, SymbolMissing, SymbolMissing, ""}

	for _, m := range sortedMetrics(h) {
		switch v := m.(type) {
		case parsers.CPU:
			row[2] = fmt.Sprintf("%.1f%%", v.BusyPercent)
		case parsers.Memory:
			row[3] = fmt.Sprintf("%s / %s", ibytes(v.UsedBytes), ibytes(v.TotalBytes))
		case parsers.Disk:
			row[4] = fmt.Sprintf("%s / %s", ibytes(v.UsedBytes), ibytes(v.TotalBytes))
		case parsers.Network:
			var rx, tx int64
			for _, iface := range v.Interfaces {
				rx += iface.RxBytes
				tx += iface.TxBytes
			}
			row[5] = fmt.Sprintf("%s / %s", ibytes(rx), ibytes(tx))
		}
	}
	if n := len(h.Failures); n > 0 {
		row[6] = fmt.Sprintf("%d", n)
	}
	return row
}

// sortedMetrics returns h's metrics in reverse name order, so the first
// command of a kind wins a column.
func sortedMetrics(h monitor.HostSnapshot) []parsers.Metric {
	names := make([]string, 0, len(h.Metrics))
	for name := range h.Metrics {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]parsers.Metric, 0, len(names))
	for _, name := range names {
		out = append(out, h.Metrics[name])
	}
	return out
}

func renderFailures(snap *monitor.FleetSnapshot, ids []string) string {
	errStyle := lipgloss.NewStyle().Foreground(ColorError)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	var b strings.Builder
	for _, id := range ids {
		h := snap.Hosts[id]
		names := make([]string, 0, len(h.Failures))
		for name := range h.Failures {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			f := h.Failures[name]
			line := fmt.Sprintf("  %s %s %s: %s", errStyle.Render(SymbolDown), id, name, f.Reason)
			if f.Detail != "" {
				line += " " + muted.Render("("+f.Detail+")")
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func ibytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
