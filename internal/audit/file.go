package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLedger stores events as a JSON array in a single file. Each append
// rewrites the file through a temporary file and a rename, so a crash leaves
// either the old or the new array on disk.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger returns a ledger at path. The file is created on first
// append.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (f *FileLedger) Backend() string { return "file" }

// Path returns the ledger file location.
func (f *FileLedger) Path() string { return f.path }

// Append adds ev to the end of the array. A file that exists but does not
// hold a JSON array is left untouched and reported as an error.
func (f *FileLedger) Append(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.load()
	if err != nil {
		return err
	}
	events = append(events, ev)

	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	return f.replace(data)
}

// Events returns every recorded event in append order.
func (f *FileLedger) Events(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileLedger) Close() error { return nil }

func (f *FileLedger) load() ([]Event, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("reading ledger %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Event{}, nil
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("ledger %s is not a JSON array of events: %w", f.path, err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func (f *FileLedger) replace(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
