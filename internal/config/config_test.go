package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	f, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f != Default() {
		t.Fatalf("f = %+v, want %+v", f, Default())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logdeck.toml")
	want := File{BasePath: "/tracing", Capacity: 5000, OtelMetrics: true, OtelTraces: false}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logdeck.toml")
	if err := Save(path, File{BasePath: "/a", Capacity: 1}); err != nil {
		t.Fatalf("Save 1: %v", err)
	}
	if err := Save(path, File{BasePath: "/b", Capacity: 2}); err != nil {
		t.Fatalf("Save 2: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.BasePath != "/b" || got.Capacity != 2 {
		t.Fatalf("got %+v, want base=/b capacity=2", got)
	}
}
