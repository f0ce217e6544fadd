// memory based implementation for testing purposes
package memory

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

const (
	calendarHome    = "cal"
	addressBookHome = "card"
)

type node struct {
	uri      string
	name     string
	kind     storage.Kind
	owner    string
	parent   *node
	children map[string]*node
	order    []string

	data        []byte
	calendar    *ical.Calendar
	card        vcard.Card
	scheduleTag string
	isDefault   bool

	// shareOf is set on a sharee's virtual share and points at the shared collection.
	shareOf *node
	// sharees holds the virtual shares pointing at this collection, keyed by URI.
	sharees map[string]*node
}

func (n *node) addChild(c *node) {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c.parent = n
	n.children[c.name] = c
	n.order = append(n.order, c.name)
}

func (n *node) removeChild(name string) {
	delete(n.children, name)
	n.order = slices.DeleteFunc(n.order, func(s string) bool { return s == name })
}

// target returns the node whose data this node exposes.
func (n *node) target() *node {
	if n.shareOf != nil {
		return n.shareOf
	}
	return n
}

type user struct {
	id       string
	password string
	address  string
	freeBusy []string
}

type quotaRoot struct {
	limit int64
	used  int64
}

// Store implements storage.Store with an in-memory resource tree rooted at "/".
type Store struct {
	mu        sync.RWMutex
	root      *node
	users     map[string]*user
	quotas    map[string]*quotaRoot // key: owner
	failures  map[string]error      // key: resource URI
	revisions storage.RevisionStore
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRevisions makes the store keep sync revisions in r instead of memory.
func WithRevisions(r storage.RevisionStore) Option {
	return func(s *Store) {
		s.revisions = r
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		root:     &node{uri: "/", kind: storage.KindCollection},
		users:    make(map[string]*user),
		quotas:   make(map[string]*quotaRoot),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.revisions == nil {
		s.revisions = NewRevisions()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

func generateTag(data []byte) string {
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

func splitPath(uri string) []string {
	var segments []string
	for _, p := range strings.Split(uri, "/") {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// resolve walks uri from the root, following virtual shares. Caller holds mu.
func (s *Store) resolve(uri string) *node {
	n := s.root
	for _, seg := range splitPath(uri) {
		child, ok := n.target().children[seg]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (s *Store) insert(parentURI, name string, n *node) error {
	parent := s.resolve(parentURI)
	if parent == nil {
		return fmt.Errorf("%w: parent %s", storage.ErrNotFound, parentURI)
	}
	parent = parent.target()
	if !parent.kind.IsCollection() {
		return fmt.Errorf("%w: %s is not a collection", storage.ErrInvalidInput, parent.uri)
	}
	if _, exists := parent.children[name]; exists {
		return fmt.Errorf("%w: %s/%s", storage.ErrConflict, strings.TrimSuffix(parent.uri, "/"), name)
	}
	n.name = name
	n.uri = path.Join(parent.uri, name)
	if n.owner == "" {
		n.owner = parent.owner
	}
	parent.addChild(n)
	return nil
}

// User operations

// AddUser creates a user with a calendar home and an address book home.
func (s *Store) AddUser(id, password, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; exists {
		return fmt.Errorf("%w: user %s", storage.ErrConflict, id)
	}
	home := &node{kind: storage.KindCollection, owner: id}
	if err := s.insert("/", id, home); err != nil {
		return err
	}
	for _, name := range []string{calendarHome, addressBookHome} {
		if err := s.insert(home.uri, name, &node{kind: storage.KindCollection}); err != nil {
			return err
		}
	}
	s.users[id] = &user{id: id, password: password, address: address}
	return nil
}

// AuthUser implements storage.Authenticator.
func (s *Store) AuthUser(username, password string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok || u.password != password {
		return "", storage.ErrPermissionDenied
	}
	return u.id, nil
}

// Address returns the calendar user address of a user.
func (s *Store) Address(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return "", fmt.Errorf("%w: user %s", storage.ErrNotFound, userID)
	}
	return u.address, nil
}

// FreeBusySet returns the calendars that contribute to a user's free-busy.
func (s *Store) FreeBusySet(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID]; ok {
		return slices.Clone(u.freeBusy)
	}
	return nil
}

// SetQuota enables quota accounting for everything a user owns.
func (s *Store) SetQuota(userID string, limit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var used int64
	if home := s.resolve("/" + userID); home != nil {
		used = s.size(home)
	}
	s.quotas[userID] = &quotaRoot{limit: limit, used: used}
}

// QuotaUsed returns the bytes currently charged to a user, or 0 without quota.
func (s *Store) QuotaUsed(userID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q, ok := s.quotas[userID]; ok {
		return q.used
	}
	return 0
}

func (s *Store) charge(owner string, delta int64) {
	if q, ok := s.quotas[owner]; ok {
		q.used = max(q.used+delta, 0)
	}
}

// Calendar operations

// CreateCalendar creates a calendar collection in the user's calendar home and
// returns its URI.
func (s *Store) CreateCalendar(userID, calendarID string, isDefault bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return "", fmt.Errorf("%w: user %s", storage.ErrNotFound, userID)
	}
	n := &node{kind: storage.KindCalendarCollection, isDefault: isDefault}
	if err := s.insert(path.Join("/", userID, calendarHome), calendarID, n); err != nil {
		return "", err
	}
	u.freeBusy = append(u.freeBusy, n.uri)
	return n.uri, nil
}

// PutCalendarObject stores a calendar object. An empty scheduleTag derives one
// from the data.
func (s *Store) PutCalendarObject(calendarURI, name string, cal *ical.Calendar, scheduleTag string) (string, error) {
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, storage.ProductID)
	}
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	if scheduleTag == "" {
		scheduleTag = generateTag(buf.Bytes())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.resolve(calendarURI)
	if parent == nil || parent.target().kind != storage.KindCalendarCollection {
		return "", fmt.Errorf("%w: calendar %s", storage.ErrNotFound, calendarURI)
	}
	n := &node{
		kind:        storage.KindCalendarObject,
		data:        buf.Bytes(),
		calendar:    cal,
		scheduleTag: scheduleTag,
	}
	if err := s.insert(calendarURI, name, n); err != nil {
		return "", err
	}
	s.charge(n.owner, int64(len(n.data)))
	return n.uri, nil
}

// Address book operations

// CreateAddressBook creates an address book collection in the user's home.
func (s *Store) CreateAddressBook(userID, addressBookID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return "", fmt.Errorf("%w: user %s", storage.ErrNotFound, userID)
	}
	n := &node{kind: storage.KindAddressBookCollection}
	if err := s.insert(path.Join("/", userID, addressBookHome), addressBookID, n); err != nil {
		return "", err
	}
	return n.uri, nil
}

// PutAddressObject stores a vCard in an address book.
func (s *Store) PutAddressObject(addressBookURI, name string, card vcard.Card) (string, error) {
	if card.Value(vcard.FieldVersion) == "" {
		card.SetValue(vcard.FieldVersion, "4.0")
	}
	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", fmt.Errorf("failed to encode card: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.resolve(addressBookURI)
	if parent == nil || parent.target().kind != storage.KindAddressBookCollection {
		return "", fmt.Errorf("%w: address book %s", storage.ErrNotFound, addressBookURI)
	}
	n := &node{kind: storage.KindAddressBookObject, data: buf.Bytes(), card: card}
	if err := s.insert(addressBookURI, name, n); err != nil {
		return "", err
	}
	s.charge(n.owner, int64(len(n.data)))
	return n.uri, nil
}

// Plain WebDAV operations

// CreateCollection creates a plain collection.
func (s *Store) CreateCollection(parentURI, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := &node{kind: storage.KindCollection}
	if err := s.insert(parentURI, name, n); err != nil {
		return "", err
	}
	return n.uri, nil
}

// PutResource stores a plain resource.
func (s *Store) PutResource(parentURI, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := &node{kind: storage.KindResource, data: slices.Clone(data)}
	if err := s.insert(parentURI, name, n); err != nil {
		return "", err
	}
	s.charge(n.owner, int64(len(n.data)))
	return n.uri, nil
}

// Sharing operations

// Share gives sharee a virtual share of the collection at uri and returns the
// share's URI in the sharee's home.
func (s *Store) Share(uri, sharee string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.resolve(uri)
	if n == nil {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, uri)
	}
	n = n.target()
	home := calendarHome
	switch n.kind {
	case storage.KindCalendarCollection:
	case storage.KindAddressBookCollection:
		home = addressBookHome
	default:
		return "", fmt.Errorf("%w: %s cannot be shared", storage.ErrInvalidInput, uri)
	}
	if _, ok := s.users[sharee]; !ok {
		return "", fmt.Errorf("%w: user %s", storage.ErrNotFound, sharee)
	}
	share := &node{kind: n.kind, owner: sharee, shareOf: n}
	if err := s.insert(path.Join("/", sharee, home), n.owner+"-"+n.name, share); err != nil {
		return "", err
	}
	if n.sharees == nil {
		n.sharees = make(map[string]*node)
	}
	n.sharees[share.uri] = share
	return share.uri, nil
}

// Sharees returns the URIs of virtual shares pointing at uri.
func (s *Store) Sharees(uri string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.resolve(uri)
	if n == nil {
		return nil
	}
	var uris []string
	for u := range n.target().sharees {
		uris = append(uris, u)
	}
	slices.Sort(uris)
	return uris
}

func (s *Store) unshare(n *node) {
	for _, share := range n.sharees {
		if share.parent != nil {
			share.parent.removeChild(share.name)
		}
	}
	n.sharees = nil
}

// Inspection helpers

// Exists reports whether uri resolves to a stored resource.
func (s *Store) Exists(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(uri) != nil
}

// SyncRevision returns the current sync revision of the collection at uri.
func (s *Store) SyncRevision(ctx context.Context, uri string) (int64, error) {
	s.mu.RLock()
	n := s.resolve(uri)
	s.mu.RUnlock()
	if n != nil {
		uri = n.target().uri
	}
	return s.revisions.Current(ctx, uri)
}

// Revisions returns the revision store backing sync collections.
func (s *Store) Revisions() storage.RevisionStore {
	return s.revisions
}

// InjectFailure makes every delete of uri fail with err until ClearFailure.
func (s *Store) InjectFailure(uri string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[uri] = err
}

// ClearFailure removes an injected failure.
func (s *Store) ClearFailure(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, uri)
}

// size returns the bytes accounted to n. Caller holds mu.
func (s *Store) size(n *node) int64 {
	if n.shareOf != nil {
		return 0
	}
	total := int64(len(n.data))
	for _, c := range n.children {
		total += s.size(c)
	}
	return total
}

// storage.Store implementation

func (s *Store) handle(n *node, uri string) storage.Resource {
	r := &resource{s: s, uri: uri, name: path.Base(uri), kind: n.target().kind, owner: n.target().owner}
	switch r.kind {
	case storage.KindCalendarCollection:
		return &calendarCollection{collection: &collection{resource: r}}
	case storage.KindAddressBookCollection, storage.KindCollection:
		return &collection{resource: r}
	case storage.KindCalendarObject:
		return &calendarObject{resource: r}
	case storage.KindAddressBookObject:
		return &addressObject{resource: r}
	default:
		return r
	}
}

func (s *Store) Locate(_ context.Context, uri string) (storage.Resource, error) {
	uri = path.Clean("/" + uri)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.resolve(uri)
	if n == nil {
		return &resource{s: s, uri: uri, name: path.Base(uri), kind: storage.KindResource}, nil
	}
	return s.handle(n, uri), nil
}

func (s *Store) LocateParent(ctx context.Context, uri string) (storage.Collection, error) {
	uri = path.Clean("/" + uri)
	if uri == "/" {
		return nil, fmt.Errorf("%w: root has no parent", storage.ErrNotFound)
	}
	res, err := s.Locate(ctx, path.Dir(uri))
	if err != nil {
		return nil, err
	}
	col, ok := res.(storage.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: parent of %s", storage.ErrNotFound, uri)
	}
	return col, nil
}

func (s *Store) LocateChild(ctx context.Context, parent storage.Collection, name string) (storage.Resource, error) {
	return s.Locate(ctx, path.Join(parent.URI(), name))
}

func (s *Store) Delete(_ context.Context, uri string, _ storage.Resource, depth storage.Depth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.resolve(uri)
	if n == nil {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, uri)
	}
	if n == s.root {
		return fmt.Errorf("%w: cannot delete the root", storage.ErrPermissionDenied)
	}

	// A virtual share is only a link in the sharee's home.
	if n.shareOf != nil {
		delete(n.shareOf.sharees, n.uri)
		n.parent.removeChild(n.name)
		return nil
	}

	if n.kind.IsCollection() && depth != storage.DepthInfinity {
		return fmt.Errorf("%w: illegal depth %s for collection delete", storage.ErrInvalidInput, depth)
	}
	if err, ok := s.failures[n.uri]; ok {
		return err
	}

	failures := make(map[string]error)
	if s.remove(n, uri, failures) {
		s.logger.Debug("resource removed", "uri", uri)
		return nil
	}
	return &storage.PartialDeleteError{Failures: failures}
}

// remove deletes n and its members, skipping anything with an injected failure.
// uri is the path n was reached by. Reports whether n itself is gone.
func (s *Store) remove(n *node, uri string, failures map[string]error) bool {
	if err, ok := s.failures[n.uri]; ok {
		failures[uri] = err
		return false
	}
	complete := true
	for _, name := range slices.Clone(n.order) {
		if !s.remove(n.children[name], path.Join(uri, name), failures) {
			complete = false
		}
	}
	if !complete {
		return false
	}
	if n.shareOf != nil {
		delete(n.shareOf.sharees, n.uri)
	}
	s.unshare(n)
	n.parent.removeChild(n.name)
	return true
}

func (s *Store) WalkCalendarCollections(ctx context.Context, root storage.Collection, fn func(ctx context.Context, cal storage.CalendarCollection) error) error {
	for _, res := range s.collect(root.URI(), storage.KindCalendarCollection) {
		if err := fn(ctx, res.(storage.CalendarCollection)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WalkAddressBookCollections(ctx context.Context, root storage.Collection, fn func(ctx context.Context, ab storage.Collection) error) error {
	for _, res := range s.collect(root.URI(), storage.KindAddressBookCollection) {
		if err := fn(ctx, res.(storage.Collection)); err != nil {
			return err
		}
	}
	return nil
}

// collect snapshots handles for every collection of kind below uri, so the
// callback is free to mutate the tree.
func (s *Store) collect(uri string, kind storage.Kind) []storage.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []storage.Resource
	var walk func(n *node, uri string)
	walk = func(n *node, uri string) {
		if n.target().kind == kind {
			found = append(found, s.handle(n, uri))
			return
		}
		if n.shareOf != nil {
			return
		}
		for _, name := range n.order {
			walk(n.children[name], path.Join(uri, name))
		}
	}
	if n := s.resolve(uri); n != nil {
		walk(n, path.Clean("/"+uri))
	}
	return found
}
