package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/blitz/internal/artifact"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/step"
)

const maxTarget = 48

// StepsView lists steps one per line.
type StepsView struct {
	Steps []step.Step
}

// Render implements Renderer.
func (v StepsView) Render(s Styles) string {
	if len(v.Steps) == 0 {
		return s.Muted.Render("no steps")
	}

	var b strings.Builder
	b.WriteString(s.Header.Render(fmt.Sprintf("%4s  %-9s  %-13s  %s", "ID", "STATUS", "KIND", "TARGET")))
	for _, st := range v.Steps {
		b.WriteByte('\n')
		b.WriteString(fmt.Sprintf("%4d  ", st.ID))
		b.WriteString(statusStyle(s, st.Status).Render(fmt.Sprintf("%-9s", st.Status)))
		b.WriteString(fmt.Sprintf("  %-13s  %s", st.Kind, truncate(target(st), maxTarget)))
	}
	return b.String()
}

func statusStyle(s Styles, status step.Status) lipgloss.Style {
	if status == step.StatusCompleted {
		return s.Success
	}
	return s.Warning
}

func target(st step.Step) string {
	if st.Kind == step.KindRunCommand {
		return "$ " + firstLine(st.Content)
	}
	return st.Path
}

func firstLine(text string) string {
	line, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if rest != "" {
		return line + " …"
	}
	return line
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}

// TreeView draws a tree with box connectors, folders first as stored.
type TreeView struct {
	Tree filetree.Tree
}

// Render implements Renderer.
func (v TreeView) Render(s Styles) string {
	if v.Tree.Empty() {
		return s.Muted.Render("(empty tree)")
	}
	var b strings.Builder
	drawLevel(&b, s, v.Tree.Roots, "")
	stats := v.Tree.Stats()
	b.WriteString(s.Muted.Render(fmt.Sprintf("%d files, %d folders", stats.Files, stats.Folders)))
	return b.String()
}

func drawLevel(b *strings.Builder, s Styles, items []*filetree.Item, prefix string) {
	for i, it := range items {
		connector, indent := "├── ", "│   "
		if i == len(items)-1 {
			connector, indent = "└── ", "    "
		}
		b.WriteString(s.Muted.Render(prefix + connector))
		if it.IsFolder() {
			b.WriteString(s.Folder.Render(it.Name + "/"))
		} else {
			b.WriteString(it.Name)
			b.WriteString(s.Muted.Render(fmt.Sprintf(" (%d B)", len(it.Content))))
		}
		b.WriteByte('\n')
		if it.IsFolder() {
			drawLevel(b, s, it.Children, prefix+indent)
		}
	}
}

// ParseView shows what a parse extracted and what it skipped.
type ParseView struct {
	Result artifact.Result
}

// Render implements Renderer.
func (v ParseView) Render(s Styles) string {
	var b strings.Builder
	for _, a := range v.Result.Artifacts {
		title := a.Title
		if title == "" {
			title = a.ID
		}
		line := s.Title.Render(title)
		if !a.Closed {
			line += " " + s.Warning.Render("(unterminated)")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(StepsView{Steps: v.Result.Steps}.Render(s))
	for _, w := range v.Result.Warnings {
		b.WriteString("\n" + s.Warning.Render("warning: ") + w.String())
	}
	return b.String()
}

// PassView summarises one pass.
type PassView struct {
	Pass session.PassResult
}

// Render implements Renderer.
func (v PassView) Render(s Styles) string {
	p := v.Pass
	var b strings.Builder

	mounted := "unchanged"
	if p.Mounted {
		mounted = "mounted"
	}
	b.WriteString(fmt.Sprintf("%s %d applied, %d rejected, %d commands, %s (%s)",
		s.Key.Render("pass:"), len(p.Applied), len(p.Failed), len(p.Commands), mounted,
		p.Duration.Round(time.Millisecond)))

	for _, f := range p.Failed {
		b.WriteString("\n  " + s.Error.Render("✗ ") + fmt.Sprintf("step %d %s: %s", f.Step.ID, f.Step.Path, f.Error))
	}
	for _, c := range p.Commands {
		b.WriteString("\n  ")
		switch {
		case !c.Dispatched:
			b.WriteString(s.Error.Render("✗ ") + "$ " + c.Command + s.Muted.Render(" not run: "+c.Error))
		case c.Result.Succeeded():
			b.WriteString(s.Success.Render("✓ ") + "$ " + c.Command)
		default:
			b.WriteString(s.Warning.Render("! ") + "$ " + c.Command + s.Muted.Render(fmt.Sprintf(" exit %d", c.Result.ExitCode)))
		}
	}
	return b.String()
}

// HistoryView prints a session's journal.
type HistoryView struct {
	SessionID string          `json:"session_id" yaml:"session_id"`
	Entries   []journal.Entry `json:"entries" yaml:"entries"`
	Runs      []journal.Run   `json:"runs" yaml:"runs"`
}

// Render implements Renderer.
func (v HistoryView) Render(s Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("session " + v.SessionID))

	steps := make([]step.Step, len(v.Entries))
	for i, e := range v.Entries {
		steps[i] = e.Step
	}
	b.WriteString("\n" + StepsView{Steps: steps}.Render(s))

	if len(v.Runs) > 0 {
		b.WriteString("\n\n" + s.Header.Render("runs"))
		for _, r := range v.Runs {
			mark := s.Success.Render("✓")
			if r.Error != "" || r.ExitCode != 0 {
				mark = s.Error.Render("✗")
			}
			b.WriteString(fmt.Sprintf("\n  %s %s  $ %s  %s", mark,
				r.RanAt.Local().Format(time.DateTime), firstLine(r.Command),
				s.Muted.Render(fmt.Sprintf("exit %d in %s", r.ExitCode, r.Duration.Round(time.Millisecond)))))
		}
	}
	return b.String()
}

// SessionsView lists journaled sessions.
type SessionsView struct {
	Sessions []journal.Summary
}

// Render implements Renderer.
func (v SessionsView) Render(s Styles) string {
	if len(v.Sessions) == 0 {
		return s.Muted.Render("no sessions recorded")
	}
	var b strings.Builder
	b.WriteString(s.Header.Render(fmt.Sprintf("%-36s  %5s  %7s  %s", "SESSION", "STEPS", "PENDING", "LAST ACTIVITY")))
	for _, sum := range v.Sessions {
		b.WriteString(fmt.Sprintf("\n%-36s  %5d  %7d  %s", sum.SessionID, sum.Steps, sum.Pending,
			sum.LastActivity.Local().Format(time.DateTime)))
	}
	return b.String()
}
