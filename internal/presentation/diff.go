package presentation

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/gto/internal/registry/index"
)

var (
	addStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	delStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// IndexDiff renders a line diff of an index file change, for annotate
// and remove output.
func IndexDiff(change index.Change) string {
	if change.Before == change.After {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(change.Before, change.After)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	out.WriteString("--- " + change.Path + "\n")
	out.WriteString("+++ " + change.Path + "\n")
	for _, d := range diffs {
		for line := range strings.SplitSeq(strings.TrimRight(d.Text, "\n"), "\n") {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				out.WriteString(addStyle.Render("+"+line) + "\n")
			case diffmatchpatch.DiffDelete:
				out.WriteString(delStyle.Render("-"+line) + "\n")
			default:
				out.WriteString(" " + line + "\n")
			}
		}
	}
	return out.String()
}
