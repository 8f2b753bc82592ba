package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/csvleech/leech/internal/errors"
)

// lockRetryDelay is how often a blocked Local lock acquisition retries
// while waiting for ctx to either succeed or be cancelled.
const lockRetryDelay = 10 * time.Millisecond

// LocalStore implements Store against a directory on the local
// filesystem. Writes stream to a sibling name.tmp, fsync it, and
// atomically rename it over name; a sibling name.lock file mediates
// real OS file locks (via flock) around each operation. Write and
// Remove best-effort-remove name.lock when they finish; Read leaves it
// in place.
type LocalStore struct {
	dir string
}

// NewLocalStore creates (if needed) and returns a LocalStore rooted at
// dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIoError(errors.CodeWriteFailed, "create work directory", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(name string) string    { return filepath.Join(s.dir, name) }
func (s *LocalStore) lockPath(name string) string { return s.path(name) + ".lock" }
func (s *LocalStore) tmpPath(name string) string  { return s.path(name) + ".tmp" }

// Read acquires a shared lock on name and returns its bytes.
func (s *LocalStore) Read(ctx context.Context, name string) ([]byte, error) {
	lock := flock.New(s.lockPath(name))
	if err := rLockContext(ctx, lock); err != nil {
		return nil, errors.NewIoError(errors.CodeLockFailed, "acquire shared lock on "+name, err)
	}
	defer func() {
		lock.Unlock()
	}()

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundFile(name)
		}
		return nil, errors.NewIoError(errors.CodeReadFailed, "read "+name, err)
	}
	return data, nil
}

// Write acquires an exclusive lock on name, streams data to name.tmp,
// fsyncs it, and atomically renames it over name.
func (s *LocalStore) Write(ctx context.Context, name string, data []byte) error {
	lock := flock.New(s.lockPath(name))
	if err := lockContext(ctx, lock); err != nil {
		return errors.NewIoError(errors.CodeLockFailed, "acquire exclusive lock on "+name, err)
	}
	defer func() {
		lock.Unlock()
		os.Remove(s.lockPath(name))
	}()

	tmp := s.tmpPath(name)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewIoError(errors.CodeWriteFailed, "create "+tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.NewIoError(errors.CodeWriteFailed, "write "+tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.NewIoError(errors.CodeWriteFailed, "fsync "+tmp, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIoError(errors.CodeWriteFailed, "close "+tmp, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return errors.NewIoError(errors.CodeRenameFailed, "rename "+tmp+" to "+name, err)
	}
	return nil
}

// Remove acquires an exclusive lock on name and deletes it.
func (s *LocalStore) Remove(ctx context.Context, name string) error {
	lock := flock.New(s.lockPath(name))
	if err := lockContext(ctx, lock); err != nil {
		return errors.NewIoError(errors.CodeLockFailed, "acquire exclusive lock on "+name, err)
	}
	defer func() {
		lock.Unlock()
		os.Remove(s.lockPath(name))
	}()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundFile(name)
		}
		return errors.NewIoError(errors.CodeWriteFailed, "remove "+name, err)
	}
	return nil
}

// List returns every named file in the work directory, excluding the
// transient .lock and .tmp sidecars.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewIoError(errors.CodeReadFailed, "list work directory", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SweepStaleLocks removes every *.lock sidecar whose base name isLive
// reports as gone — a crashed writer can leave a lock behind with no
// block ever committed under it, and nothing else will ever clean it
// up. isLive is the caller's already-computed reachable-set
// membership check, so this never re-walks the chain or re-stats the
// base file itself.
func (s *LocalStore) SweepStaleLocks(ctx context.Context, isLive func(name string) bool) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.NewIoError(errors.CodeReadFailed, "list work directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".lock")
		if isLive(base) {
			continue
		}
		os.Remove(filepath.Join(s.dir, e.Name()))
	}
	return nil
}

// lockContext blocks until an exclusive lock is acquired or ctx ends;
// TryLockContext already retries at lockRetryDelay internally.
func lockContext(ctx context.Context, lock *flock.Flock) error {
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.Err()
	}
	return nil
}

// rLockContext blocks until a shared lock is acquired or ctx ends.
func rLockContext(ctx context.Context, lock *flock.Flock) error {
	ok, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.Err()
	}
	return nil
}
