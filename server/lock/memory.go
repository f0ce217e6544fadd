package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slot struct {
	ch     chan struct{}
	refs   int
	holder string
}

// Table is an in-process lock table. Locks only exclude holders sharing the
// same Table.
type Table struct {
	mu    sync.Mutex
	slots map[string]*slot
}

var _ Factory = (*Table)(nil)

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{slots: make(map[string]*slot)}
}

func (t *Table) NewLock(class, key string, timeout time.Duration) Locker {
	return &memoryLock{table: t, name: name(class, key), timeout: timeout}
}

// Held reports whether the named lock currently has a holder.
func (t *Table) Held(class, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[name(class, key)]
	return ok && s.holder != ""
}

func (t *Table) ref(n string) *slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[n]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		t.slots[n] = s
	}
	s.refs++
	return s
}

func (t *Table) unref(n string, s *slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(t.slots, n)
	}
}

type memoryLock struct {
	table   *Table
	name    string
	timeout time.Duration

	mu   sync.Mutex
	slot *slot
}

func (l *memoryLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot != nil {
		return fmt.Errorf("lock %s already acquired", l.name)
	}

	s := l.table.ref(l.name)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		l.table.mu.Lock()
		s.holder = uuid.NewString()
		l.table.mu.Unlock()
		l.slot = s
		return nil
	case <-timer.C:
		l.table.unref(l.name, s)
		return fmt.Errorf("%w: %s after %s", ErrTimeout, l.name, l.timeout)
	case <-ctx.Done():
		l.table.unref(l.name, s)
		return ctx.Err()
	}
}

func (l *memoryLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot == nil {
		return nil
	}

	s := l.slot
	l.slot = nil
	l.table.mu.Lock()
	s.holder = ""
	l.table.mu.Unlock()
	<-s.ch
	l.table.unref(l.name, s)
	return nil
}
