// Package hook runs external executables in response to pipeline events.
//
// A hook lives in its own directory under the hook root and is described by a
// hook.json manifest naming the executable and the event kinds it wants. The
// event is written to the executable's stdin as JSON and a JSON Response is
// read back from stdout.
package hook

import (
	"encoding/json"

	"github.com/ayusman/framepipe/internal/event"
)

// ManifestFile is the manifest name looked for in each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata and the events it subscribes to.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []event.Kind    `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Wants reports whether the hook subscribes to kind. An empty event list
// subscribes to everything.
func (m Manifest) Wants(kind event.Kind) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, k := range m.Events {
		if k == kind {
			return true
		}
	}
	return false
}

// Request is sent to a hook on stdin.
type Request struct {
	Event  event.Event     `json:"event"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response represents the output of a hook run.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
