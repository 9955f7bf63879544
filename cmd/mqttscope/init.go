package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nugget/mqttscope/examples"
)

// runInit writes the example configuration into dir as mqttscope.yaml,
// the first path [config.DefaultSearchPaths] looks at. An existing file
// is never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing mqttscope in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The config may carry broker credentials.
	configPath := filepath.Join(dir, "mqttscope.yaml")
	if err := writeIfMissing(w, configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit mqttscope.yaml to point at your broker, then run: mqttscope watch")
	return nil
}

// writeIfMissing creates path with content and mode unless it already
// exists, and reports what it did to w.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		fmt.Fprintf(w, "  - %s (exists, skipping)\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
