package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"ratupdater/internal/failure"
	"ratupdater/internal/manifest"
)

// ErrBackupReset marks a failure to clear or recreate the backup directory,
// which happens before any managed entry is moved.
var ErrBackupReset = errors.New("reset backup dir")

// ResetBackup deletes the backup directory left by a previous run and
// recreates it empty.
func (l Layout) ResetBackup() error {
	dir := l.BackupDir()
	if err := os.RemoveAll(dir); err != nil {
		return failure.New(failure.BackupFailed, "remove "+dir, fmt.Errorf("%w: %w", ErrBackupReset, err))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return failure.New(failure.BackupFailed, "create "+dir, fmt.Errorf("%w: %w", ErrBackupReset, err))
	}
	return nil
}

// MoveToBackup resets the backup directory and moves every top-level entry
// the manifest knows about, except kept ones, into it. With no manifest on
// disk nothing is known and nothing moves.
func (l Layout) MoveToBackup(m manifest.Manifest) ([]string, error) {
	if err := l.ResetBackup(); err != nil {
		return nil, err
	}
	if !m.Exists() {
		return nil, nil
	}
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, failure.New(failure.BackupFailed, "list "+l.Root, err)
	}
	moved := []string{}
	for _, e := range entries {
		name := e.Name()
		if l.managedDir(name) || l.Kept(name) || !l.Known(m, name) {
			continue
		}
		if err := os.Rename(filepath.Join(l.Root, name), filepath.Join(l.BackupDir(), name)); err != nil {
			return moved, failure.New(failure.BackupFailed, "move "+name, err)
		}
		moved = append(moved, name)
	}
	return moved, nil
}

// MoveToQuarantine sweeps every remaining top-level entry that is neither a
// layout directory nor kept into a fresh timestamped batch directory. The
// batch is only created once something qualifies; batch is "" otherwise.
func (l Layout) MoveToQuarantine(now time.Time) (batch string, moved []string, err error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return "", nil, failure.New(failure.QuarantineFailed, "list "+l.Root, err)
	}
	dir := &lazyBatch{parent: l.QuarantineDir(), stamp: now.UnixMilli()}
	moved = []string{}
	for _, e := range entries {
		name := e.Name()
		if l.managedDir(name) || l.Kept(name) {
			continue
		}
		target, err := dir.ensure()
		if err != nil {
			return "", moved, failure.New(failure.QuarantineFailed, "create batch", err)
		}
		if err := os.Rename(filepath.Join(l.Root, name), filepath.Join(target, name)); err != nil {
			return target, moved, failure.New(failure.QuarantineFailed, "move "+name, err)
		}
		moved = append(moved, name)
	}
	return dir.path, moved, nil
}

// Recover moves every entry of the backup directory back into the root.
// A root entry in the way is removed first so the backed up one wins.
// Entries already restored stay restored when a later one fails.
func (l Layout) Recover() ([]string, error) {
	dir := l.BackupDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, failure.New(failure.RecoveryFailed, "list "+dir, err)
	}
	restored := []string{}
	for _, e := range entries {
		name := e.Name()
		target := filepath.Join(l.Root, name)
		if _, err := os.Lstat(target); err == nil {
			if err := os.RemoveAll(target); err != nil {
				return restored, failure.New(failure.RecoveryFailed, "clear "+name, err)
			}
		}
		if err := os.Rename(filepath.Join(dir, name), target); err != nil {
			return restored, failure.New(failure.RecoveryFailed, "restore "+name, err)
		}
		restored = append(restored, name)
	}
	return restored, nil
}

// Batches lists quarantine batch names, oldest first.
func (l Layout) Batches() ([]string, error) {
	entries, err := os.ReadDir(l.QuarantineDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.ParseInt(e.Name(), 10, 64); err == nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	names := make([]string, 0, len(out))
	for _, n := range out {
		names = append(names, strconv.FormatInt(n, 10))
	}
	return names, nil
}

// lazyBatch defers creating the quarantine batch directory until ensure is
// first called. Batch names never go below an existing batch.
type lazyBatch struct {
	parent string
	stamp  int64
	path   string
}

func (b *lazyBatch) ensure() (string, error) {
	if b.path != "" {
		return b.path, nil
	}
	if err := os.MkdirAll(b.parent, 0o755); err != nil {
		return "", err
	}
	n := b.stamp
	if last, err := latestBatch(b.parent); err != nil {
		return "", err
	} else if last >= n {
		n = last + 1
	}
	for {
		p := filepath.Join(b.parent, strconv.FormatInt(n, 10))
		err := os.Mkdir(p, 0o755)
		if err == nil {
			b.path = p
			return p, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		n++
	}
}

func latestBatch(parent string) (int64, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	var last int64 = -1
	for _, e := range entries {
		if n, err := strconv.ParseInt(e.Name(), 10, 64); err == nil && n > last {
			last = n
		}
	}
	return last, nil
}
