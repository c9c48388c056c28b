package presentation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"github.com/zjrosen/gto/internal/registry/index"
	"github.com/zjrosen/gto/internal/registry/query"
	"github.com/zjrosen/gto/internal/registry/state"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Glyphs decorate table cells when emojis are enabled and the terminal
// can take them.
type Glyphs struct {
	enabled bool
}

// NewGlyphs returns glyph rendering honoring the emojis config and the
// terminal's capabilities.
func NewGlyphs(emojis bool) Glyphs {
	if termenv.ColorProfile() == termenv.Ascii {
		emojis = false
	}
	return Glyphs{enabled: emojis}
}

func (g Glyphs) artifact() string {
	if g.enabled {
		return "🏷  "
	}
	return ""
}

func (g Glyphs) deprecated() string {
	if g.enabled {
		return "🗑  "
	}
	return "[deprecated] "
}

func (g Glyphs) conflict() string {
	if g.enabled {
		return "⚠  "
	}
	return "[conflict] "
}

// RegistryTable renders the per-artifact overview.
func RegistryTable(rows []query.Row, g Glyphs) string {
	stages := stageColumns(rows)
	headers := []string{"name", "latest"}
	for _, s := range stages {
		headers = append(headers, "#"+s)
	}

	t := newTable(headers)
	for _, row := range rows {
		name := g.artifact() + row.Name
		if row.Deprecated {
			name = g.deprecated() + row.Name
		}
		cells := []string{name, orDash(row.Latest)}
		for _, stage := range stages {
			cells = append(cells, orDash(row.Stages[stage]))
		}
		t.Row(cells...)
	}
	return t.Render()
}

func stageColumns(rows []query.Row) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for stage := range row.Stages {
			seen[stage] = true
		}
	}
	stages := make([]string, 0, len(seen))
	for s := range seen {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	return stages
}

// VersionsTable renders the per-version view of one artifact.
func VersionsTable(rows []query.VersionRow, g Glyphs) string {
	t := newTable([]string{"version", "stages", "created_at", "commit", "state"})
	for _, row := range rows {
		stateCell := "registered"
		switch {
		case row.Deregistered:
			stateCell = "deregistered"
		case row.Discovered:
			stateCell = "discovered"
		case !row.Registered:
			stateCell = "unregistered"
		}
		t.Row(
			row.Version,
			orDash(strings.Join(row.Stages, ", ")),
			row.CreatedAt,
			shortSha(row.Commit),
			stateCell,
		)
	}
	return t.Render()
}

// HistoryTable renders the event history.
func HistoryTable(recs []state.Record, g Glyphs) string {
	t := newTable([]string{"timestamp", "artifact", "event", "version", "stage", "ref"})
	for _, rec := range recs {
		eventCell := string(rec.Kind)
		if rec.Conflict {
			eventCell = warnStyle.Render(g.conflict() + eventCell)
		}
		if rec.Orphan {
			eventCell = dimStyle.Render(eventCell + " (orphan)")
		}
		ts := ""
		if !rec.CreatedAt.IsZero() {
			ts = rec.CreatedAt.Format("2006-01-02 15:04:05")
		}
		t.Row(
			ts,
			rec.Artifact,
			eventCell,
			orDash(rec.Version),
			orDash(rec.Stage),
			rec.Ref,
		)
	}
	return t.Render()
}

// Describe renders index metadata as aligned key/value lines, wrapping
// long descriptions.
func Describe(name string, meta *index.Artifact) string {
	var b strings.Builder
	write := func(key, value string) {
		if value == "" {
			return
		}
		pad := runewidth.FillRight(key+":", 13)
		fmt.Fprintf(&b, "%s%s\n", headerStyle.Render(pad), value)
	}
	write("name", name)
	write("type", meta.Type)
	write("path", meta.Path)
	write("virtual", fmt.Sprintf("%v", meta.Virtual))
	write("labels", strings.Join(meta.Labels, ", "))
	if meta.Description != "" {
		wrapped := wordwrap.String(meta.Description, 72)
		lines := strings.Split(wrapped, "\n")
		write("description", lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(&b, "%s%s\n", strings.Repeat(" ", 13), line)
		}
	}
	keys := make([]string, 0, len(meta.Custom))
	for k := range meta.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, fmt.Sprintf("%v", meta.Custom[k]))
	}
	return b.String()
}

func newTable(headers []string) *table.Table {
	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = headerStyle.Render(h)
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(styled...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortSha(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
