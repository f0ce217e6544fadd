package lock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
)

const defaultPollInterval = 50 * time.Millisecond

// FileFactory creates locks backed by lock files in a directory shared by all
// server instances. Lock files record the holder's PID, which lockfile treats
// as reentrant, so holders inside one process are also serialized through an
// in-process Table.
type FileFactory struct {
	dir   string
	poll  time.Duration
	local *Table
}

var _ Factory = (*FileFactory)(nil)

// FileOption configures a FileFactory.
type FileOption func(*FileFactory)

// WithPollInterval sets how often a busy lock file is retried.
func WithPollInterval(d time.Duration) FileOption {
	return func(f *FileFactory) {
		f.poll = d
	}
}

// NewFileFactory creates dir if needed and returns a factory for locks in it.
func NewFileFactory(dir string, opts ...FileOption) (*FileFactory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	f := &FileFactory{dir: abs, poll: defaultPollInterval, local: NewTable()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileFactory) NewLock(class, key string, timeout time.Duration) Locker {
	hash := sha1.Sum([]byte(name(class, key)))
	return &fileLock{
		factory: f,
		path:    filepath.Join(f.dir, hex.EncodeToString(hash[:])+".lock"),
		local:   f.local.NewLock(class, key, timeout),
		timeout: timeout,
	}
}

type fileLock struct {
	factory *FileFactory
	path    string
	local   Locker
	timeout time.Duration

	file lockfile.Lockfile
	held bool
}

func temporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func (l *fileLock) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	if err := l.local.Acquire(ctx); err != nil {
		return err
	}

	file, err := lockfile.New(l.path)
	if err != nil {
		return Release(ctx, l.local, fmt.Errorf("failed to create lock file: %w", err))
	}

	for {
		err := file.TryLock()
		if err == nil {
			l.file = file
			l.held = true
			return nil
		}
		if !temporary(err) {
			return Release(ctx, l.local, fmt.Errorf("failed to lock %s: %w", l.path, err))
		}
		if !time.Now().Before(deadline) {
			return Release(ctx, l.local, fmt.Errorf("%w: %s after %s", ErrTimeout, l.path, l.timeout))
		}

		wait := min(l.factory.poll, time.Until(deadline))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return Release(ctx, l.local, ctx.Err())
		}
	}
}

func (l *fileLock) Release(ctx context.Context) error {
	var err error
	if l.held {
		l.held = false
		if unlockErr := l.file.Unlock(); unlockErr != nil {
			err = fmt.Errorf("failed to release lock file %s: %w", l.path, unlockErr)
		}
	}
	return Release(ctx, l.local, err)
}
