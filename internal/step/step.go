// Package step defines build steps and the append-only store that tracks them.
package step

import (
	"fmt"
	"time"
)

// Kind identifies what a step does to the project.
type Kind string

const (
	KindCreateFile   Kind = "create_file"
	KindCreateFolder Kind = "create_folder"
	KindRunCommand   Kind = "run_command"
	KindEditFile     Kind = "edit_file"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCreateFile, KindCreateFolder, KindRunCommand, KindEditFile:
		return true
	}
	return false
}

// WritesFile reports whether the kind replaces a file's content.
func (k Kind) WritesFile() bool {
	return k == KindCreateFile || k == KindEditFile
}

// NeedsPath reports whether a step of this kind must carry a path.
func (k Kind) NeedsPath() bool {
	return k != KindRunCommand
}

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Step is one atomic build action extracted from model output.
// Only Status changes after a step is stored.
type Step struct {
	ID         int64     `json:"id" yaml:"id"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	Title      string    `json:"title" yaml:"title"`
	Path       string    `json:"path,omitempty" yaml:"path,omitempty"`
	Content    string    `json:"content" yaml:"content"`
	Status     Status    `json:"status" yaml:"status"`
	ArtifactID string    `json:"artifact_id,omitempty" yaml:"artifact_id,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Pending reports whether the step still awaits application.
func (s Step) Pending() bool {
	return s.Status != StatusCompleted
}

// DefaultTitle returns the label used when an entry carries none.
func DefaultTitle(kind Kind, path, content string) string {
	switch kind {
	case KindCreateFile:
		return fmt.Sprintf("Create %s", path)
	case KindEditFile:
		return fmt.Sprintf("Edit %s", path)
	case KindCreateFolder:
		return fmt.Sprintf("Create folder %s", path)
	case KindRunCommand:
		return fmt.Sprintf("Run %s", firstLine(content))
	default:
		return string(kind)
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
