// Package ui is the output sink for the engine. Core packages emit
// events; the port renders them either richly (lipgloss, for
// terminals) or plainly (stable, pipe-friendly text). The core never
// decides which.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

// Event is anything the engine wants shown.
type Event interface{ isEvent() }

// ResultLine is a single line of primary output.
type ResultLine struct {
	Text string
}

// Table is tabular output with a header row.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// TreeNode is one node of a Tree event.
type TreeNode struct {
	Label    string
	Children []TreeNode
}

// Tree is hierarchical output.
type Tree struct {
	Root TreeNode
}

// Progress reports consultation or verification activity. Percent is
// -1 when unknown.
type Progress struct {
	Tool    string
	Phase   string
	Percent int
}

// Warning is a non-fatal notice.
type Warning struct {
	Text string
}

// ErrorLine is a rendered error.
type ErrorLine struct {
	Text string
}

// JsonDump emits a value as indented JSON regardless of port flavor.
type JsonDump struct {
	Value any
}

func (ResultLine) isEvent() {}
func (Table) isEvent()      {}
func (Tree) isEvent()       {}
func (Progress) isEvent()   {}
func (Warning) isEvent()    {}
func (ErrorLine) isEvent()  {}
func (JsonDump) isEvent()   {}

// Port renders events.
type Port interface {
	Print(Event)
}

// NewPort picks rich or plain rendering. Plain wins when forced, when
// stdout is not a terminal, or when the terminal reports no color
// support.
func NewPort(w io.Writer, forcePlain bool) Port {
	if forcePlain || !IsTerminal() || termenv.DefaultOutput().Profile == termenv.Ascii {
		return &PlainPort{W: w}
	}
	return &RichPort{W: w}
}

// PlainPort writes stable unstyled text.
type PlainPort struct {
	W io.Writer
}

func (p *PlainPort) Print(e Event) {
	switch ev := e.(type) {
	case ResultLine:
		fmt.Fprintln(p.W, ev.Text)
	case Table:
		if ev.Title != "" {
			fmt.Fprintln(p.W, ev.Title)
		}
		fmt.Fprintln(p.W, strings.Join(ev.Headers, "\t"))
		for _, row := range ev.Rows {
			fmt.Fprintln(p.W, strings.Join(row, "\t"))
		}
	case Tree:
		printPlainTree(p.W, ev.Root, 0)
	case Progress:
		if ev.Percent >= 0 {
			fmt.Fprintf(p.W, "[%s] %s (%d%%)\n", ev.Tool, ev.Phase, ev.Percent)
		} else {
			fmt.Fprintf(p.W, "[%s] %s\n", ev.Tool, ev.Phase)
		}
	case Warning:
		fmt.Fprintf(p.W, "Warning: %s\n", ev.Text)
	case ErrorLine:
		fmt.Fprintf(p.W, "Error: %s\n", ev.Text)
	case JsonDump:
		printJSON(p.W, ev.Value)
	}
}

func printPlainTree(w io.Writer, n TreeNode, depth int) {
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n.Label)
	for _, c := range n.Children {
		printPlainTree(w, c, depth+1)
	}
}

// RichPort writes styled terminal output.
type RichPort struct {
	W io.Writer
}

func (p *RichPort) Print(e Event) {
	switch ev := e.(type) {
	case ResultLine:
		fmt.Fprintln(p.W, ev.Text)
	case Table:
		if ev.Title != "" {
			fmt.Fprintln(p.W, headerStyle.Render(ev.Title))
		}
		t := lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(mutedStyle).
			Width(GetWidth()).
			Headers(ev.Headers...).
			Rows(ev.Rows...)
		fmt.Fprintln(p.W, t.Render())
	case Tree:
		printRichTree(p.W, ev.Root, nil)
	case Progress:
		label := mutedStyle.Render(fmt.Sprintf("[%s]", ev.Tool))
		if ev.Percent >= 0 {
			fmt.Fprintf(p.W, "%s %s %s\n", label, ev.Phase, mutedStyle.Render(fmt.Sprintf("(%d%%)", ev.Percent)))
		} else {
			fmt.Fprintf(p.W, "%s %s\n", label, ev.Phase)
		}
	case Warning:
		fmt.Fprintln(p.W, warnStyle.Render("⚠ "+ev.Text))
	case ErrorLine:
		fmt.Fprintln(p.W, errorStyle.Render("✗ "+ev.Text))
	case JsonDump:
		printJSON(p.W, ev.Value)
	}
}

func printRichTree(w io.Writer, n TreeNode, prefix []bool) {
	var b strings.Builder
	for i, last := range prefix {
		if i == len(prefix)-1 {
			if last {
				b.WriteString("└─ ")
			} else {
				b.WriteString("├─ ")
			}
		} else {
			if last {
				b.WriteString("   ")
			} else {
				b.WriteString("│  ")
			}
		}
	}
	fmt.Fprintf(w, "%s%s\n", mutedStyle.Render(b.String()), n.Label)
	for i, c := range n.Children {
		next := append(append([]bool(nil), prefix...), i == len(n.Children)-1)
		printRichTree(w, c, next)
	}
}

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error: encoding output: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

// StatusGlyph renders a status marker for task listings.
func StatusGlyph(status string, rich bool) string {
	glyph := map[string]string{
		"pending":     "○",
		"in_progress": "◐",
		"completed":   "●",
		"blocked":     "✗",
	}[status]
	if glyph == "" {
		glyph = "?"
	}
	if !rich {
		return glyph
	}
	switch status {
	case "completed":
		return successStyle.Render(glyph)
	case "blocked":
		return errorStyle.Render(glyph)
	case "in_progress":
		return warnStyle.Render(glyph)
	default:
		return mutedStyle.Render(glyph)
	}
}
