// Package config provides an optional TOML-backed loader for logdeck.Config,
// for hosts that prefer externalizing mount settings to a file over
// constructing the struct in code. Adapted from the atomic temp-file-then-
// rename save idiom in the teacher's internal/configstore package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk shape of an optional logdeck.toml.
type File struct {
	BasePath    string `toml:"base_path"`
	Capacity    int    `toml:"capacity"`
	OtelMetrics bool   `toml:"otel_metrics"`
	OtelTraces  bool   `toml:"otel_traces"`
}

// Default returns the file defaults applied when a key is absent from disk.
func Default() File {
	return File{
		BasePath: "/logdeck",
		Capacity: 10000,
	}
}

// Load reads and decodes path. A missing file returns Default() with no
// error, so callers can unconditionally call Load on an optional path.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// Save atomically writes f to path: encode to a sibling temp file, fsync,
// then rename over the destination so a reader never observes a partial
// write.
func Save(path string, f File) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "logdeck-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleaned := false
	defer func() {
		if !cleaned {
			_ = os.Remove(tmpName)
		}
	}()

	encoder := toml.NewEncoder(tmp)
	if err := encoder.Encode(f); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}
	cleaned = true
	return nil
}
