package ux

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/blitz/internal/artifact"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/step"
)

var plain = NewStyles(false)

func sampleSteps() []step.Step {
	return []step.Step{
		{ID: 1, Kind: step.KindCreateFile, Path: "src/App.tsx", Status: step.StatusCompleted},
		{ID: 2, Kind: step.KindRunCommand, Content: "npm install\nnpm run dev", Status: step.StatusPending},
	}
}

func TestStepsView(t *testing.T) {
	out := StepsView{Steps: sampleSteps()}.Render(plain)
	lines := strings.Split(out, "\n")

	assert.Len(t, lines, 3)
	assert.Equal(t, "  ID  STATUS     KIND           TARGET", lines[0])
	assert.Equal(t, "   1  completed  create_file    src/App.tsx", lines[1])
	assert.Equal(t, "   2  pending    run_command    $ npm install …", lines[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestTreeView(t *testing.T) {
	tree, res := filetree.Apply(filetree.Tree{}, []step.Step{
		{ID: 1, Kind: step.KindCreateFile, Path: "src/App.tsx", Content: "abc"},
		{ID: 2, Kind: step.KindCreateFile, Path: "src/lib/util.ts", Content: ""},
		{ID: 3, Kind: step.KindCreateFile, Path: "package.json", Content: "{}"},
	})
	assert.Empty(t, res.Failed)

	want := strings.Join([]string{
		"├── src/",
		"│   ├── App.tsx (3 B)",
		"│   └── lib/",
		"│       └── util.ts (0 B)",
		"└── package.json (2 B)",
		"3 files, 2 folders",
	}, "\n")
	assert.Equal(t, want, TreeView{Tree: tree}.Render(plain))

	assert.Equal(t, "(empty tree)", TreeView{}.Render(plain))
}

func TestParseView(t *testing.T) {
	out := ParseView{Result: artifact.Result{
		Steps:     sampleSteps()[:1],
		Warnings:  []artifact.Warning{{Offset: 12, Message: "action without type"}},
		Artifacts: []artifact.Artifact{{ID: "app", Title: "My App"}},
	}}.Render(plain)

	assert.True(t, strings.HasPrefix(out, "My App (unterminated)\n"))
	assert.Contains(t, out, "src/App.tsx")
	assert.True(t, strings.HasSuffix(out, "warning: offset 12: action without type"))
}

func TestPassView(t *testing.T) {
	out := PassView{Pass: session.PassResult{
		Applied: []int64{1, 2},
		Failed: []session.StepFailure{
			{Step: step.Step{ID: 3, Path: "src"}, Error: "type conflict"},
		},
		Commands: []session.CommandOutcome{
			{Command: "npm install", Dispatched: true, Result: sandbox.RunResult{ExitCode: 0}},
			{Command: "npm test", Dispatched: true, Result: sandbox.RunResult{ExitCode: 1}},
			{Command: "npm start", Error: "sh missing"},
		},
		Mounted:  true,
		Duration: 1500 * time.Microsecond,
	}}.Render(plain)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "pass: 2 applied, 1 rejected, 3 commands, mounted (2ms)", lines[0])
	assert.Equal(t, "  ✗ step 3 src: type conflict", lines[1])
	assert.Equal(t, "  ✓ $ npm install", lines[2])
	assert.Equal(t, "  ! $ npm test exit 1", lines[3])
	assert.Equal(t, "  ✗ $ npm start not run: sh missing", lines[4])
}

func TestHistoryAndSessionsViews(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hist := HistoryView{
		SessionID: "s1",
		Entries:   []journal.Entry{{Step: sampleSteps()[0], CompletedAt: &now}},
		Runs:      []journal.Run{{Command: "npm install", ExitCode: 2, RanAt: now}},
	}.Render(plain)

	assert.True(t, strings.HasPrefix(hist, "session s1\n"))
	assert.Contains(t, hist, "src/App.tsx")
	assert.Contains(t, hist, "✗")
	assert.Contains(t, hist, "exit 2")

	assert.Equal(t, "no sessions recorded", SessionsView{}.Render(plain))
	list := SessionsView{Sessions: []journal.Summary{{SessionID: "s1", Steps: 4, Pending: 1, LastActivity: now}}}.Render(plain)
	assert.Contains(t, list, "s1")
	assert.Equal(t, 2, strings.Count(list, "\n")+1)
}
