package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
	"github.com/samber/mo"
)

// resource is a lazy handle; every call resolves uri again.
type resource struct {
	s     *Store
	uri   string
	name  string
	kind  storage.Kind
	owner string
}

var (
	_ storage.Resource           = (*resource)(nil)
	_ storage.CalendarObject     = (*calendarObject)(nil)
	_ storage.AddressObject      = (*addressObject)(nil)
	_ storage.Collection         = (*collection)(nil)
	_ storage.CalendarCollection = (*calendarCollection)(nil)
	_ storage.Store              = (*Store)(nil)
	_ storage.Authenticator      = (*Store)(nil)
)

func (r *resource) URI() string        { return r.uri }
func (r *resource) Name() string       { return r.name }
func (r *resource) Kind() storage.Kind { return r.kind }
func (r *resource) Owner() string      { return r.owner }

// lookup resolves the handle. Caller holds s.mu.
func (r *resource) lookup() (*node, error) {
	n := r.s.resolve(r.uri)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, r.uri)
	}
	return n, nil
}

func (r *resource) Exists(_ context.Context) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.resolve(r.uri) != nil, nil
}

func (r *resource) ScheduleTag(_ context.Context) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, err := r.lookup()
	if err != nil {
		return "", false, err
	}
	n = n.target()
	return n.scheduleTag, n.scheduleTag != "", nil
}

func (r *resource) ETag(_ context.Context) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, err := r.lookup()
	if err != nil {
		return "", false, err
	}
	n = n.target()
	if n.kind.IsCollection() {
		return "", false, nil
	}
	return generateTag(n.data), true, nil
}

func (r *resource) Quota(_ context.Context) (mo.Option[int64], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if q, ok := r.s.quotas[r.owner]; ok {
		return mo.Some(q.limit), nil
	}
	return mo.None[int64](), nil
}

func (r *resource) QuotaSize(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, err := r.lookup()
	if err != nil {
		return 0, err
	}
	return r.s.size(n), nil
}

func (r *resource) AdjustQuota(_ context.Context, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.quotas[r.owner]; !ok {
		return fmt.Errorf("%w: no quota for %s", storage.ErrInvalidInput, r.uri)
	}
	r.s.charge(r.owner, delta)
	return nil
}

type calendarObject struct {
	*resource
}

func (o *calendarObject) CalendarData(_ context.Context) (*ical.Calendar, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	n, err := o.lookup()
	if err != nil {
		return nil, err
	}
	return n.target().calendar, nil
}

type addressObject struct {
	*resource
}

func (o *addressObject) Card(_ context.Context) (vcard.Card, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	n, err := o.lookup()
	if err != nil {
		return nil, err
	}
	return n.target().card, nil
}

type collection struct {
	*resource
}

func (c *collection) ListChildren(_ context.Context) ([]string, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	n, err := c.lookup()
	if err != nil {
		return nil, err
	}
	return slices.Clone(n.target().order), nil
}

// revisionKey is the URI of the collection that actually holds the data.
func (c *collection) revisionKey() string {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	if n := c.s.resolve(c.uri); n != nil {
		return n.target().uri
	}
	return c.uri
}

func (c *collection) BumpSyncToken(ctx context.Context) (int64, error) {
	return c.s.revisions.Bump(ctx, c.revisionKey())
}

func (c *collection) Index() storage.Index {
	return index{c}
}

func (c *collection) IsVirtualShare(_ context.Context) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	n, err := c.lookup()
	if err != nil {
		return false, err
	}
	return n.shareOf != nil, nil
}

func (c *collection) RemoveVirtualShare(_ context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	n, err := c.lookup()
	if err != nil {
		return err
	}
	if n.shareOf == nil {
		return fmt.Errorf("%w: %s is not a virtual share", storage.ErrInvalidInput, c.uri)
	}
	delete(n.shareOf.sharees, n.uri)
	n.parent.removeChild(n.name)
	return nil
}

func (c *collection) IsShared(_ context.Context) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	n, err := c.lookup()
	if err != nil {
		return false, err
	}
	return n.shareOf == nil && len(n.sharees) > 0, nil
}

func (c *collection) DowngradeFromShare(_ context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	n, err := c.lookup()
	if err != nil {
		return err
	}
	c.s.unshare(n.target())
	return nil
}

type index struct {
	c *collection
}

func (i index) DeleteResource(ctx context.Context, name string, revision int64) error {
	return i.c.s.revisions.Tombstone(ctx, i.c.revisionKey(), name, revision)
}

type calendarCollection struct {
	*collection
}

func (c *calendarCollection) IsDefaultCalendar(_ context.Context) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	n, err := c.lookup()
	if err != nil {
		return false, err
	}
	return n.shareOf == nil && n.isDefault, nil
}

// DeletedCalendar drops the calendar from its owner's free-busy set.
func (c *calendarCollection) DeletedCalendar(_ context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if u, ok := c.s.users[c.owner]; ok {
		u.freeBusy = slices.DeleteFunc(u.freeBusy, func(uri string) bool { return uri == c.uri })
	}
	return nil
}
