package storage

import (
	"context"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
	"github.com/samber/mo"
)

// Resource is a handle to a stored object or collection. Handles are cheap and
// may outlive the stored data; use Exists to check.
type Resource interface {
	// URI is the resource path, e.g. "/alice/cal/work/event1.ics".
	URI() string
	// Name is the last path segment, which is the key in the parent's index.
	Name() string
	Kind() Kind
	// Owner is the user ID of the home this resource lives in.
	Owner() string
	Exists(ctx context.Context) (bool, error)
	// ScheduleTag returns the stored schedule tag, if the resource has one.
	ScheduleTag(ctx context.Context) (string, bool, error)
	// ETag returns the strong entity tag of the stored content. Collections
	// have none.
	ETag(ctx context.Context) (string, bool, error)
	// Quota returns the quota limit that applies to the resource, or None if
	// the resource has no quota support.
	Quota(ctx context.Context) (mo.Option[int64], error)
	// QuotaSize returns the bytes the resource currently accounts for.
	QuotaSize(ctx context.Context) (int64, error)
	// AdjustQuota changes the usage of the quota root by delta bytes.
	AdjustQuota(ctx context.Context, delta int64) error
}

// CalendarObject is a resource holding iCalendar data.
type CalendarObject interface {
	Resource
	// CalendarData returns the object's calendar as seen by its owner.
	CalendarData(ctx context.Context) (*ical.Calendar, error)
}

// AddressObject is a resource holding vCard data.
type AddressObject interface {
	Resource
	Card(ctx context.Context) (vcard.Card, error)
}

// Index maps child names of a sync collection to their metadata.
type Index interface {
	// DeleteResource removes the child entry and records its removal at revision.
	DeleteResource(ctx context.Context, name string, revision int64) error
}

// Collection is a resource with children.
type Collection interface {
	Resource
	// ListChildren returns child names in listing order.
	ListChildren(ctx context.Context) ([]string, error)
	// BumpSyncToken advances the collection's sync revision by one and returns it.
	BumpSyncToken(ctx context.Context) (int64, error)
	Index() Index
	// IsVirtualShare reports whether the collection is a sharee's reference into
	// another user's collection.
	IsVirtualShare(ctx context.Context) (bool, error)
	// RemoveVirtualShare detaches a virtual share without touching the shared data.
	RemoveVirtualShare(ctx context.Context) error
	// IsShared reports whether the owner currently shares the collection.
	IsShared(ctx context.Context) (bool, error)
	// DowngradeFromShare revokes all sharees and turns the collection private.
	DowngradeFromShare(ctx context.Context) error
}

// CalendarCollection is a collection of calendar objects.
type CalendarCollection interface {
	Collection
	IsDefaultCalendar(ctx context.Context) (bool, error)
	// DeletedCalendar runs owner-side cleanup after the calendar is gone.
	DeletedCalendar(ctx context.Context) error
}

// Store connects the delete logic with your backend storage. Please use the
// error types provided.
type Store interface {
	// Locate returns the resource at uri. Missing resources are returned as
	// handles whose Exists reports false.
	Locate(ctx context.Context, uri string) (Resource, error)
	// LocateParent returns the collection containing uri, or ErrNotFound for the root.
	LocateParent(ctx context.Context, uri string) (Collection, error)
	// LocateChild returns the child called name inside parent.
	LocateChild(ctx context.Context, parent Collection, name string) (Resource, error)
	// Delete physically removes the resource at uri. Collections are removed
	// recursively; members that could not be removed are reported through a
	// *PartialDeleteError. A missing resource yields ErrNotFound.
	Delete(ctx context.Context, uri string, res Resource, depth Depth) error
	// WalkCalendarCollections calls fn for every calendar collection below
	// root (root included), depth first in listing order.
	WalkCalendarCollections(ctx context.Context, root Collection, fn func(ctx context.Context, cal CalendarCollection) error) error
	// WalkAddressBookCollections calls fn for every address book collection below root.
	WalkAddressBookCollections(ctx context.Context, root Collection, fn func(ctx context.Context, ab Collection) error) error
}

// RevisionStore persists sync revisions and removal tombstones for sync
// collections. Bump must be atomic per collection.
type RevisionStore interface {
	Current(ctx context.Context, collection string) (int64, error)
	Bump(ctx context.Context, collection string) (int64, error)
	Tombstone(ctx context.Context, collection, name string, revision int64) error
	// Tombstones returns removed child names with the revision they were removed at.
	Tombstones(ctx context.Context, collection string) (map[string]int64, error)
}

// Authenticator checks Basic credentials and returns the user ID.
type Authenticator interface {
	AuthUser(username, password string) (string, error)
}
