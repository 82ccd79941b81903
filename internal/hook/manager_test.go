package hook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/framepipe/internal/event"
)

func TestManager_Discover(t *testing.T) {
	dir := t.TempDir()

	writeHook(t, dir, Manifest{
		Name:        "notify",
		Version:     "1.0.0",
		Description: "sends a notification",
		Executable:  "notify.sh",
		Events:      []event.Kind{event.StageFailed},
	}, "#!/bin/sh\n")
	writeHook(t, dir, Manifest{Name: "audit", Executable: "audit.sh"}, "#!/bin/sh\n")

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := m.List()
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "audit" || hooks[1].Manifest.Name != "notify" {
		t.Errorf("hooks not sorted by name: %s, %s", hooks[0].Manifest.Name, hooks[1].Manifest.Name)
	}

	notify, err := m.Get("notify")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if want := filepath.Join(dir, "notify", "notify.sh"); notify.Executable != want {
		t.Errorf("Executable = %q, want %q", notify.Executable, want)
	}

	if got := m.For(event.StageFailed); len(got) != 2 {
		t.Errorf("For(stage.failed) returned %d hooks, want 2", len(got))
	}
	if got := m.For(event.MatchChanged); len(got) != 1 || got[0].Manifest.Name != "audit" {
		t.Errorf("For(match.changed) = %v, want only audit", got)
	}
}

func TestManager_Discover_SkipsBadManifests(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	writeHook(t, dir, Manifest{Name: "noexec"}, "")

	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if n := len(m.List()); n != 0 {
		t.Errorf("expected 0 hooks, got %d", n)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := m.Discover(); err != nil {
		t.Errorf("Discover() on missing dir should succeed, got %v", err)
	}
	if m.HookDir() == "" {
		t.Error("HookDir() should return the configured dir")
	}
}

func TestManager_Get_NotFound(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Get("nope"); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("Get() error = %v, want ErrHookNotFound", err)
	}
}
