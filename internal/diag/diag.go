// Package diag emits optional JSON diagnostic lines to stdout.
//
// The channel is enabled by the GH_NEURALNOTE_CPP_DIAG environment variable
// (1/true/yes/on) and is a pure side channel: nothing in the pipelines may
// change behavior based on its state.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	once      sync.Once
	enabled   bool
	startedAt time.Time
)

func initState() {
	enabled = truthy(os.Getenv("GH_NEURALNOTE_CPP_DIAG"))
	startedAt = time.Now()
}

func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Enabled reports whether diagnostics are on. The environment is consulted
// once and latched.
func Enabled() bool {
	once.Do(initState)
	return enabled
}

type record struct {
	Type      string   `json:"type"`
	Component string   `json:"component"`
	Event     string   `json:"event"`
	ElapsedMs int64    `json:"elapsedMs"`
	Detail    string   `json:"detail,omitempty"`
	Progress  *float64 `json:"progress,omitempty"`
}

// Emit writes one diagnostic line. detail may be empty; a negative progress
// is omitted from the payload.
func Emit(component, event, detail string, progress float64) {
	if !Enabled() {
		return
	}

	rec := record{
		Type:      "diag",
		Component: component,
		Event:     event,
		ElapsedMs: time.Since(startedAt).Milliseconds(),
		Detail:    detail,
	}
	if progress >= 0 {
		rec.Progress = &progress
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stdout, string(line))
}
