package escalation

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CSV appends records to a CSV file, writing the header once when the file is
// created. Appends are serialized in-process by a mutex and across processes by
// an advisory file lock where the platform supports it.
type CSV struct {
	path string
	mu   sync.Mutex
}

// NewCSV returns a recorder appending to path. The file and its parent
// directories are created on first append.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Path returns the destination file.
func (c *CSV) Path() string { return c.path }

func (c *CSV) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create escalation log dir: %w", err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open escalation log: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock escalation log: %w", err)
	}
	defer unlockFile(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat escalation log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("write escalation header: %w", err)
		}
	}
	if err := w.Write(rec.Values()); err != nil {
		return fmt.Errorf("write escalation record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush escalation log: %w", err)
	}
	return nil
}
