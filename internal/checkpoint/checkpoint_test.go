package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/step"
)

func sampleState(id string) *State {
	store := step.NewStore()
	steps := store.Append(
		step.Step{Kind: step.KindCreateFile, Path: "src/App.tsx", Content: "hello"},
		step.Step{Kind: step.KindRunCommand, Content: "npm install"},
	)
	store.MarkCompleted(steps[0].ID)

	tree, _ := filetree.Apply(filetree.Tree{}, steps[:1])

	state := NewState(id)
	state.Template = "react"
	state.Steps = store.All()
	state.Tree = tree
	state.Transcript = []provider.Message{{Role: "user", Content: "build a counter"}}
	state.Digest = "abc"
	return state
}

func TestNewState(t *testing.T) {
	state := NewState("s1")

	if state.Version != Version {
		t.Errorf("expected version %s, got %s", Version, state.Version)
	}
	if state.SessionID != "s1" {
		t.Errorf("expected session s1, got %s", state.SessionID)
	}
	if state.Metadata == nil {
		t.Error("metadata map should be initialized")
	}
	if state.IsComplete() {
		t.Error("an empty snapshot is not complete")
	}
	if state.Progress() != 0 {
		t.Errorf("expected progress 0, got %f", state.Progress())
	}
}

func TestManagerSaveLoad(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "checkpoints"))
	state := sampleState("s1")
	state.SetMetadata("model", "gemini-2.5-flash")

	if err := manager.Save(state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := manager.Load("s1")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}

	opts := cmp.Options{
		cmpopts.EquateApproxTime(0),
	}
	if diff := cmp.Diff(state, loaded, opts); diff != "" {
		t.Errorf("loaded state mismatch (-want +got):\n%s", diff)
	}
	if v, ok := loaded.GetMetadata("model"); !ok || v != "gemini-2.5-flash" {
		t.Errorf("metadata not restored: %q %v", v, ok)
	}

	if _, err := os.Stat(filepath.Join(manager.Dir(), "s1.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}
}

func TestStateProgress(t *testing.T) {
	state := sampleState("s1")

	if got := state.Progress(); got != 0.5 {
		t.Errorf("expected progress 0.5, got %f", got)
	}
	pending := state.Pending()
	if len(pending) != 1 || pending[0].Kind != step.KindRunCommand {
		t.Errorf("unexpected pending steps: %+v", pending)
	}
	if state.IsComplete() {
		t.Error("state with pending steps is not complete")
	}

	state.Steps[1].Status = step.StatusCompleted
	if !state.IsComplete() {
		t.Error("state should be complete")
	}
}

func TestManagerExistsDelete(t *testing.T) {
	manager := NewManager(t.TempDir())

	if manager.Exists("s1") {
		t.Error("checkpoint should not exist initially")
	}
	if err := manager.Save(sampleState("s1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !manager.Exists("s1") {
		t.Error("checkpoint should exist after save")
	}
	if err := manager.Delete("s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if manager.Exists("s1") {
		t.Error("checkpoint should not exist after delete")
	}
	if err := manager.Delete("s1"); err != nil {
		t.Errorf("deleting a missing checkpoint should succeed, got %v", err)
	}
}

func TestManagerLoadMissing(t *testing.T) {
	manager := NewManager(t.TempDir())

	_, err := manager.Load("missing")
	if !errors.HasCode(err, errors.ErrCodeFileNotFound) {
		t.Errorf("expected IO-001, got %v", err)
	}
}

func TestManagerLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewManager(dir).Load("bad")
	if !errors.HasCode(err, errors.ErrCodeFileUnmarshal) {
		t.Errorf("expected IO-005, got %v", err)
	}
}

func TestManagerRejectsUnsafeIDs(t *testing.T) {
	manager := NewManager(t.TempDir())

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		state := NewState(id)
		if err := manager.Save(state); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
		if manager.Exists(id) {
			t.Errorf("Exists(%q) should be false", id)
		}
	}
}

func TestManagerList(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir)

	ids, err := manager.List()
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty list, got %v %v", ids, err)
	}

	for _, id := range []string{"b", "a", "c"} {
		if err := manager.Save(NewState(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	ids, err = manager.List()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	missing := NewManager(filepath.Join(dir, "nope"))
	ids, err = missing.List()
	if err != nil || len(ids) != 0 {
		t.Errorf("missing directory should list nothing, got %v %v", ids, err)
	}
}
