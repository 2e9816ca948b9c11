// Package mirror implements the periodic directory mirror: an endless
// validate-then-copy loop that recursively copies a source directory into a
// destination on a fixed interval.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"snowbanker/internal/logger"
)

// ErrPath marks a missing or invalid directory. It is fatal: the loop never
// retries past a bad path.
var ErrPath = errors.New("invalid path")

// DefaultInterval is how long the mirror sleeps between cycles.
const DefaultInterval = 1800 * time.Second

// Job names the two directories and the interval between cycles.
type Job struct {
	Source   string
	Dest     string
	Interval time.Duration
}

// Validate checks that both paths currently exist and are directories.
func (j Job) Validate() error {
	for _, path := range []string{j.Source, j.Dest} {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPath, path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrPath, path)
		}
	}
	return nil
}

// Runner drives a job's mirror cycles. NewTicker is replaceable so tests can
// step the loop without real sleeps.
type Runner struct {
	Job       Job
	NewTicker func(time.Duration) (<-chan time.Time, func())
}

// NewRunner creates a runner with a real ticker.
func NewRunner(job Job) *Runner {
	if job.Interval <= 0 {
		job.Interval = DefaultInterval
	}
	return &Runner{
		Job: job,
		NewTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run loops validate, copy, sleep until the context is cancelled or a path
// check fails. Path failures are fatal; copy failures are logged and the
// loop carries on to the next cycle.
func (r *Runner) Run(ctx context.Context) error {
	tick, stop := r.NewTicker(r.Job.Interval)
	defer stop()

	for {
		if err := r.Job.Validate(); err != nil {
			logger.ErrorWithErr(ctx, "Mirror path check failed", err)
			return err
		}

		logger.Info(ctx, "Mirror copy started", "source", r.Job.Source, "dest", r.Job.Dest)
		if err := CopyTree(r.Job.Source, r.Job.Dest); err != nil {
			logger.Warn(ctx, "Mirror copy finished with errors", "error", err)
		} else {
			logger.Info(ctx, "Mirror copy finished")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

// CopyTree recursively copies every entry under src into dst. Existing
// destination files are overwritten (last write wins); nothing is deleted.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil // sockets, devices, symlinks: skipped
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
