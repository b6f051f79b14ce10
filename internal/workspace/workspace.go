// Package workspace manages temporary files for a single server job.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workspace is an isolated scratch directory.
type Workspace struct {
	Dir       string
	CreatedAt time.Time
}

// Create makes a new workspace in the system temp directory.
func Create() (*Workspace, error) {
	dir, err := os.MkdirTemp("", "guitarhelio-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{
		Dir:       dir,
		CreatedAt: time.Now(),
	}, nil
}

// Path helpers for workspace files
func (w *Workspace) NotesPCM() string   { return filepath.Join(w.Dir, "notes_22050.f32") }
func (w *Workspace) TempoPCM() string   { return filepath.Join(w.Dir, "tempo_11025.f32") }
func (w *Workspace) OutputJSON() string { return filepath.Join(w.Dir, "transcription.json") }
func (w *Workspace) OutputMIDI() string { return filepath.Join(w.Dir, "transcription.mid") }

// Cleanup removes the workspace directory and all contents.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}
