package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/manifest"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func printReport(w io.Writer, r *engine.Report) {
	status := green.Render(string(r.Status))
	if r.Status == engine.StatusFailed {
		status = red.Render(string(r.Status))
	}
	title := r.Kind
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s %s %s\n", bold.Render(title), status, gray.Render(r.Duration().Round(time.Millisecond).String()))

	fmt.Fprintf(w, "  unchanged %d  local %d  remote %d  conflicted %d  suppressed %d\n",
		len(r.Unchanged), len(r.LocalOnly), len(r.RemoteOnly), len(r.Conflicted), len(r.Suppressed))
	if !r.DryRun {
		fmt.Fprintf(w, "  pushed %d  pulled %d  created %d  resolved %d\n", r.Pushed, r.Pulled, r.Created, r.Resolved)
	}

	for _, a := range r.Actions {
		line := fmt.Sprintf("  %-8s %s", a.Op, a.Path)
		if a.Detail != "" {
			line += gray.Render("  " + a.Detail)
		}
		if a.Op == engine.OpConflict {
			line = yellow.Render(fmt.Sprintf("  %-8s %s", a.Op, a.Path)) + gray.Render("  "+a.Detail)
		}
		fmt.Fprintln(w, line)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s %s %s\n", red.Render(fmt.Sprintf("%-8s", e.Op)), e.ID, red.Render(e.Message()))
	}
}

func statusStyle(s manifest.Status) lipgloss.Style {
	switch s {
	case manifest.StatusConflicted:
		return red
	case manifest.StatusModified:
		return yellow
	}
	return green
}

func printDocuments(w io.Writer, docs []*manifest.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, gray.Render("  no tracked documents"))
		return
	}
	width := 0
	for _, d := range docs {
		width = max(width, len(d.LocalPath))
	}
	for _, d := range docs {
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			statusStyle(d.Status).Render(fmt.Sprintf("%-10s", d.Status)),
			d.LocalPath+strings.Repeat(" ", width-len(d.LocalPath)),
			cyan.Render(fmt.Sprintf("v%d", d.Version)),
			gray.Render(d.ID),
		)
	}
}

func since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
