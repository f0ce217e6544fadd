package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/cyp0633/caldelete/server/storage/badgerstore"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

func testEvent(uid string) *ical.Calendar {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ev.Props.SetDateTime(ical.PropDateTimeStart, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store := New(opts...)
	if err := store.AddUser("alice", "secret", "mailto:alice@example.com"); err != nil {
		t.Fatalf("AddUser(alice): %v", err)
	}
	if err := store.AddUser("bob", "hunter2", "mailto:bob@example.com"); err != nil {
		t.Fatalf("AddUser(bob): %v", err)
	}
	return store
}

func TestStore_User(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddUser("alice", "x", ""); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate AddUser error = %v, want ErrConflict", err)
	}

	id, err := store.AuthUser("bob", "hunter2")
	if err != nil || id != "bob" {
		t.Errorf("AuthUser(bob) = %q, %v", id, err)
	}
	if _, err := store.AuthUser("bob", "wrong"); !errors.Is(err, storage.ErrPermissionDenied) {
		t.Errorf("AuthUser with wrong password error = %v, want ErrPermissionDenied", err)
	}

	addr, err := store.Address(ctx, "alice")
	if err != nil || addr != "mailto:alice@example.com" {
		t.Errorf("Address(alice) = %q, %v", addr, err)
	}
	if _, err := store.Address(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Address(nobody) error = %v, want ErrNotFound", err)
	}

	for _, uri := range []string{"/alice", "/alice/cal", "/alice/card"} {
		if !store.Exists(uri) {
			t.Errorf("expected %s to exist", uri)
		}
	}
}

func TestStore_Calendar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	homeURI, err := store.CreateCalendar("alice", "home", true)
	if err != nil {
		t.Fatalf("CreateCalendar: %v", err)
	}
	if homeURI != "/alice/cal/home" {
		t.Errorf("CreateCalendar uri = %s", homeURI)
	}
	if _, err := store.CreateCalendar("alice", "home", false); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate CreateCalendar error = %v, want ErrConflict", err)
	}
	if _, err := store.CreateCalendar("nobody", "home", false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("CreateCalendar for missing user error = %v, want ErrNotFound", err)
	}

	res, err := store.Locate(ctx, homeURI)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	cal, ok := res.(storage.CalendarCollection)
	if !ok {
		t.Fatalf("Locate(%s) = %T, want CalendarCollection", homeURI, res)
	}
	if cal.Owner() != "alice" || cal.Name() != "home" || cal.Kind() != storage.KindCalendarCollection {
		t.Errorf("unexpected handle: owner=%s name=%s kind=%s", cal.Owner(), cal.Name(), cal.Kind())
	}
	if isDefault, _ := cal.IsDefaultCalendar(ctx); !isDefault {
		t.Error("expected default calendar")
	}

	if got := store.FreeBusySet("alice"); len(got) != 1 || got[0] != homeURI {
		t.Errorf("FreeBusySet = %v", got)
	}
	if err := cal.DeletedCalendar(ctx); err != nil {
		t.Fatalf("DeletedCalendar: %v", err)
	}
	if got := store.FreeBusySet("alice"); len(got) != 0 {
		t.Errorf("FreeBusySet after DeletedCalendar = %v", got)
	}
}

func TestStore_CalendarObject(t *testing.T) {
	store := newTestStore(t)
	store.SetQuota("alice", 4096)
	ctx := context.Background()

	calURI, _ := store.CreateCalendar("alice", "work", false)
	uri, err := store.PutCalendarObject(calURI, "e.ics", testEvent("uid-1"), "")
	if err != nil {
		t.Fatalf("PutCalendarObject: %v", err)
	}
	if _, err := store.PutCalendarObject("/alice/cal/missing", "e.ics", testEvent("uid-2"), ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("PutCalendarObject into missing calendar error = %v, want ErrNotFound", err)
	}

	res, err := store.Locate(ctx, uri)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	obj, ok := res.(storage.CalendarObject)
	if !ok {
		t.Fatalf("Locate(%s) = %T, want CalendarObject", uri, res)
	}

	data, err := obj.CalendarData(ctx)
	if err != nil || data == nil {
		t.Fatalf("CalendarData = %v, %v", data, err)
	}
	if v, _ := data.Props.Text(ical.PropProductID); v != storage.ProductID {
		t.Errorf("PRODID = %q, want %q", v, storage.ProductID)
	}

	tag, ok, err := obj.ScheduleTag(ctx)
	if err != nil || !ok || tag == "" {
		t.Errorf("ScheduleTag = %q, %v, %v; want generated tag", tag, ok, err)
	}

	etag, ok, err := obj.ETag(ctx)
	if err != nil || !ok || !strings.HasPrefix(etag, `"`) {
		t.Errorf("ETag = %q, %v, %v; want quoted tag", etag, ok, err)
	}
	cal, _ := store.Locate(ctx, calURI)
	if etag, ok, err := cal.ETag(ctx); err != nil || ok {
		t.Errorf("calendar ETag = %q, %v, %v; want none", etag, ok, err)
	}

	size, err := obj.QuotaSize(ctx)
	if err != nil || size <= 0 {
		t.Fatalf("QuotaSize = %d, %v", size, err)
	}
	if used := store.QuotaUsed("alice"); used != size {
		t.Errorf("QuotaUsed = %d, want %d", used, size)
	}
	limit, err := obj.Quota(ctx)
	if err != nil || limit.OrEmpty() != 4096 {
		t.Errorf("Quota = %v, %v", limit, err)
	}

	if err := obj.AdjustQuota(ctx, -size); err != nil {
		t.Fatalf("AdjustQuota: %v", err)
	}
	if used := store.QuotaUsed("alice"); used != 0 {
		t.Errorf("QuotaUsed after adjust = %d", used)
	}
	// Usage never goes negative.
	if err := obj.AdjustQuota(ctx, -size); err != nil {
		t.Fatalf("AdjustQuota: %v", err)
	}
	if used := store.QuotaUsed("alice"); used != 0 {
		t.Errorf("QuotaUsed clamped = %d", used)
	}

	// Bob has no quota.
	bobCal, _ := store.CreateCalendar("bob", "home", false)
	bobRes, _ := store.Locate(ctx, bobCal)
	if limit, _ := bobRes.Quota(ctx); limit.IsPresent() {
		t.Error("expected no quota for bob")
	}
	if err := bobRes.AdjustQuota(ctx, -1); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("AdjustQuota without quota error = %v, want ErrInvalidInput", err)
	}
}

func TestStore_AddressObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	abURI, err := store.CreateAddressBook("alice", "contacts")
	if err != nil {
		t.Fatalf("CreateAddressBook: %v", err)
	}
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, "Bob")
	uri, err := store.PutAddressObject(abURI, "bob.vcf", card)
	if err != nil {
		t.Fatalf("PutAddressObject: %v", err)
	}

	res, _ := store.Locate(ctx, uri)
	obj, ok := res.(storage.AddressObject)
	if !ok {
		t.Fatalf("Locate(%s) = %T, want AddressObject", uri, res)
	}
	got, err := obj.Card(ctx)
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if got.Value(vcard.FieldVersion) != "4.0" || got.Value(vcard.FieldFormattedName) != "Bob" {
		t.Errorf("unexpected card %v", got)
	}
	if obj.Kind() != storage.KindAddressBookObject {
		t.Errorf("Kind = %s", obj.Kind())
	}
}

func TestStore_Locate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	calURI, _ := store.CreateCalendar("alice", "work", false)

	missing, err := store.Locate(ctx, calURI+"/missing.ics")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if exists, _ := missing.Exists(ctx); exists {
		t.Error("missing resource reports existing")
	}

	parent, err := store.LocateParent(ctx, calURI+"/missing.ics")
	if err != nil || parent.URI() != calURI || parent.Kind() != storage.KindCalendarCollection {
		t.Errorf("LocateParent = %v, %v", parent, err)
	}
	if _, err := store.LocateParent(ctx, "/"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LocateParent(/) error = %v, want ErrNotFound", err)
	}

	child, err := store.LocateChild(ctx, parent, "missing.ics")
	if err != nil || child.URI() != calURI+"/missing.ics" {
		t.Errorf("LocateChild = %v, %v", child, err)
	}

	// Paths are cleaned.
	res, _ := store.Locate(ctx, "alice//cal/./work/")
	if res.URI() != calURI {
		t.Errorf("Locate cleaned uri = %s, want %s", res.URI(), calURI)
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	store.SetQuota("alice", 1<<20)
	ctx := context.Background()

	calURI, _ := store.CreateCalendar("alice", "work", false)
	a, _ := store.PutCalendarObject(calURI, "a.ics", testEvent("uid-a"), "")
	b, _ := store.PutCalendarObject(calURI, "b.ics", testEvent("uid-b"), "")

	if err := store.Delete(ctx, calURI, nil, storage.DepthZero); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Delete with depth 0 error = %v, want ErrInvalidInput", err)
	}
	if err := store.Delete(ctx, "/", nil, storage.DepthInfinity); !errors.Is(err, storage.ErrPermissionDenied) {
		t.Errorf("Delete(/) error = %v, want ErrPermissionDenied", err)
	}
	if err := store.Delete(ctx, calURI+"/missing.ics", nil, storage.DepthInfinity); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	diskErr := errors.New("disk error")
	store.InjectFailure(b, diskErr)
	if err := store.Delete(ctx, b, nil, storage.DepthInfinity); !errors.Is(err, diskErr) {
		t.Errorf("Delete with injected failure error = %v", err)
	}

	err := store.Delete(ctx, calURI, nil, storage.DepthInfinity)
	var partial *storage.PartialDeleteError
	if !errors.As(err, &partial) {
		t.Fatalf("Delete(calendar) error = %v, want PartialDeleteError", err)
	}
	if len(partial.Failures) != 1 || !errors.Is(partial.Failures[b], diskErr) {
		t.Errorf("Failures = %v", partial.Failures)
	}
	if store.Exists(a) || !store.Exists(b) || !store.Exists(calURI) {
		t.Error("partial delete removed the wrong resources")
	}

	store.ClearFailure(b)
	if err := store.Delete(ctx, calURI, nil, storage.DepthInfinity); err != nil {
		t.Fatalf("Delete(calendar): %v", err)
	}
	if store.Exists(calURI) {
		t.Error("calendar still exists")
	}
}

func TestStore_Sharing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	calURI, _ := store.CreateCalendar("alice", "work", false)
	objURI, _ := store.PutCalendarObject(calURI, "a.ics", testEvent("uid-a"), "tag-a")
	shareURI, err := store.Share(calURI, "bob")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if shareURI != "/bob/cal/alice-work" {
		t.Errorf("share uri = %s", shareURI)
	}
	if _, err := store.Share("/alice/cal", "bob"); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Share(plain collection) error = %v, want ErrInvalidInput", err)
	}

	// Members are reachable through the share.
	sharedObj, _ := store.Locate(ctx, shareURI+"/a.ics")
	if tag, _, _ := sharedObj.ScheduleTag(ctx); tag != "tag-a" {
		t.Errorf("ScheduleTag through share = %q", tag)
	}
	if sharedObj.Owner() != "alice" {
		t.Errorf("Owner through share = %s, want alice", sharedObj.Owner())
	}

	res, _ := store.Locate(ctx, shareURI)
	share := res.(storage.CalendarCollection)
	if virtual, _ := share.IsVirtualShare(ctx); !virtual {
		t.Error("expected virtual share")
	}
	if isDefault, _ := share.IsDefaultCalendar(ctx); isDefault {
		t.Error("a share is never a default calendar")
	}
	if size, _ := share.QuotaSize(ctx); size != 0 {
		t.Errorf("share QuotaSize = %d, want 0", size)
	}

	// Revisions of a share are those of the shared calendar.
	if _, err := share.BumpSyncToken(ctx); err != nil {
		t.Fatalf("BumpSyncToken: %v", err)
	}
	if rev, _ := store.SyncRevision(ctx, calURI); rev != 1 {
		t.Errorf("owner revision = %d, want 1", rev)
	}

	owner, _ := store.Locate(ctx, calURI)
	ownerCal := owner.(storage.Collection)
	if shared, _ := ownerCal.IsShared(ctx); !shared {
		t.Error("expected owner calendar to be shared")
	}
	if err := ownerCal.RemoveVirtualShare(ctx); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("RemoveVirtualShare on owner error = %v, want ErrInvalidInput", err)
	}

	if err := share.RemoveVirtualShare(ctx); err != nil {
		t.Fatalf("RemoveVirtualShare: %v", err)
	}
	if store.Exists(shareURI) || !store.Exists(objURI) {
		t.Error("removing the share must only unlink it")
	}
	if shared, _ := ownerCal.IsShared(ctx); shared {
		t.Error("calendar still shared")
	}

	// Downgrade revokes every sharee.
	store.Share(calURI, "bob")
	if err := ownerCal.DowngradeFromShare(ctx); err != nil {
		t.Fatalf("DowngradeFromShare: %v", err)
	}
	if len(store.Sharees(calURI)) != 0 || store.Exists(shareURI) {
		t.Error("downgrade left sharees behind")
	}
}

func TestStore_Walk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.CreateCalendar("alice", "home", true)
	store.CreateCalendar("alice", "work", false)
	store.CreateAddressBook("alice", "contacts")
	bobCal, _ := store.CreateCalendar("bob", "home", false)
	store.Share(bobCal, "alice")

	root, _ := store.Locate(ctx, "/alice")
	var cals []string
	err := store.WalkCalendarCollections(ctx, root.(storage.Collection), func(_ context.Context, cal storage.CalendarCollection) error {
		cals = append(cals, cal.URI())
		return nil
	})
	if err != nil {
		t.Fatalf("WalkCalendarCollections: %v", err)
	}
	want := []string{"/alice/cal/home", "/alice/cal/work", "/alice/cal/bob-home"}
	if len(cals) != len(want) {
		t.Fatalf("walked %v, want %v", cals, want)
	}
	for i := range want {
		if cals[i] != want[i] {
			t.Errorf("walked[%d] = %s, want %s", i, cals[i], want[i])
		}
	}

	var abs []string
	store.WalkAddressBookCollections(ctx, root.(storage.Collection), func(_ context.Context, ab storage.Collection) error {
		abs = append(abs, ab.URI())
		return nil
	})
	if len(abs) != 1 || abs[0] != "/alice/card/contacts" {
		t.Errorf("walked address books %v", abs)
	}

	stop := errors.New("stop")
	calls := 0
	err = store.WalkCalendarCollections(ctx, root.(storage.Collection), func(context.Context, storage.CalendarCollection) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("walk did not stop: err=%v calls=%d", err, calls)
	}
}

func TestStore_IndexWithBadgerRevisions(t *testing.T) {
	revisions, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer revisions.Close()

	store := newTestStore(t, WithRevisions(revisions))
	ctx := context.Background()
	calURI, _ := store.CreateCalendar("alice", "work", false)

	res, _ := store.Locate(ctx, calURI)
	cal := res.(storage.Collection)
	rev, err := cal.BumpSyncToken(ctx)
	if err != nil || rev != 1 {
		t.Fatalf("BumpSyncToken = %d, %v", rev, err)
	}
	if err := cal.Index().DeleteResource(ctx, "a.ics", rev); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}

	tombstones, err := store.Revisions().Tombstones(ctx, calURI)
	if err != nil || tombstones["a.ics"] != 1 {
		t.Errorf("Tombstones = %v, %v", tombstones, err)
	}
}
