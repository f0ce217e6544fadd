// Package deletion orchestrates WebDAV DELETE against a calendar and contacts
// store. It picks a strategy from the kind of the target and its parent, keeps
// quota, sync tokens and indexes consistent, serializes deletes of scheduling
// objects with a lock, triggers implicit scheduling once a delete committed,
// and folds failures of individual members into a multi-status outcome.
package deletion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/caldelete/server/lock"
	"github.com/cyp0633/caldelete/server/scheduling"
	"github.com/cyp0633/caldelete/server/storage"
)

const (
	// DefaultLockTimeout bounds the wait for a scheduling object lock.
	DefaultLockTimeout = 60 * time.Second
	// DefaultLockClass is the lock class for scheduling object UIDs.
	DefaultLockClass = "ImplicitUIDLock"
)

// Config holds the tunables of an Orchestrator.
type Config struct {
	ScheduleTagCompatibility bool          `yaml:"schedule_tag_compatibility"`
	LockTimeout              time.Duration `yaml:"lock_timeout"`
	LockClass                string        `yaml:"lock_class"`
}

// Request describes a single DELETE.
type Request struct {
	Target storage.Resource
	// Parent is the collection containing Target; nil for the root.
	Parent storage.Collection
	Depth  storage.Depth
	// Internal marks server-originated deletes, which skip If-Schedule-Tag-Match
	// and implicit scheduling.
	Internal                bool
	AllowImplicitScheduling bool
	// ScheduleTagMatch is the If-Schedule-Tag-Match header value, if any.
	ScheduleTagMatch string
}

// Orchestrator runs delete requests.
type Orchestrator struct {
	store        storage.Store
	locks        lock.Factory
	trigger      scheduling.Trigger
	logger       *slog.Logger
	metrics      *Metrics
	config       Config
	precondition PreconditionChecker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocks sets the lock factory. Defaults to an in-process lock table.
func WithLocks(f lock.Factory) Option {
	return func(o *Orchestrator) {
		o.locks = f
	}
}

// WithTrigger sets the implicit scheduling trigger. Defaults to scheduling.Nop.
func WithTrigger(t scheduling.Trigger) Option {
	return func(o *Orchestrator) {
		o.trigger = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics to record into.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithConfig sets the configuration. Zero values fall back to defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// New creates an Orchestrator on top of store.
func New(store storage.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: store}
	for _, opt := range opts {
		opt(o)
	}
	if o.locks == nil {
		o.locks = lock.NewTable()
	}
	if o.trigger == nil {
		o.trigger = scheduling.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.config.LockTimeout <= 0 {
		o.config.LockTimeout = DefaultLockTimeout
	}
	if o.config.LockClass == "" {
		o.config.LockClass = DefaultLockClass
	}
	o.precondition = PreconditionChecker{
		ScheduleTagCompatibility: o.config.ScheduleTagCompatibility,
		Logger:                   o.logger,
	}
	return o
}

type strategy string

const (
	strategyCalendarObject strategy = "calendar_object"
	strategyCalendar       strategy = "calendar"
	strategyAddressObject  strategy = "address_object"
	strategyAddressBook    strategy = "address_book"
	strategyCollection     strategy = "collection"
	strategyResource       strategy = "resource"
)

// classify picks the strategy for req. Order matters: a member of a calendar
// collection is a calendar object whatever it claims to be.
func classify(req *Request) strategy {
	parentKind := storage.KindResource
	if req.Parent != nil {
		parentKind = req.Parent.Kind()
	}
	switch {
	case parentKind == storage.KindCalendarCollection:
		return strategyCalendarObject
	case req.Target.Kind() == storage.KindCalendarCollection:
		return strategyCalendar
	case parentKind == storage.KindAddressBookCollection:
		return strategyAddressObject
	case req.Target.Kind() == storage.KindAddressBookCollection:
		return strategyAddressBook
	case req.Target.Kind().IsCollection():
		return strategyCollection
	default:
		return strategyResource
	}
}

// Run deletes req.Target. It returns a 204 or 207 outcome, or an error for
// failures of the request as a whole; use StatusOf to map errors to a status.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (outcome Outcome, err error) {
	if req == nil || req.Target == nil {
		return Outcome{}, fmt.Errorf("%w: no delete target", storage.ErrInvalidInput)
	}
	uri := req.Target.URI()

	exists, err := req.Target.Exists(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !exists {
		return Outcome{}, fmt.Errorf("%w: %s", storage.ErrNotFound, uri)
	}

	s := classify(req)
	start := time.Now()
	o.logger.Debug("dispatching delete",
		"uri", uri,
		"strategy", s,
		"kind", req.Target.Kind(),
		"depth", req.Depth,
		"internal", req.Internal)

	defer func() {
		status := outcome.Status
		if err != nil {
			status = StatusOf(err)
		}
		o.metrics.observeDelete(string(s), status, start)
	}()

	switch s {
	case strategyCalendarObject:
		return o.deleteCalendarResource(ctx, req, member{res: req.Target, uri: uri, parent: req.Parent, scheduleTagMatch: req.ScheduleTagMatch})
	case strategyCalendar:
		cal, ok := req.Target.(storage.CalendarCollection)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s is not a calendar collection", storage.ErrInvalidInput, uri)
		}
		return o.deleteCalendar(ctx, req, cal, uri, req.Parent)
	case strategyAddressObject:
		return o.deleteAddressBookResource(ctx, req, req.Target, uri, req.Parent)
	case strategyAddressBook:
		ab, ok := req.Target.(storage.Collection)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s is not an address book collection", storage.ErrInvalidInput, uri)
		}
		return o.deleteAddressBook(ctx, req, ab, uri, req.Parent)
	case strategyCollection:
		col, ok := req.Target.(storage.Collection)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s is not a collection", storage.ErrInvalidInput, uri)
		}
		return o.deleteCollection(ctx, req, col, uri, req.Parent)
	default:
		return o.deleteResource(ctx, req, req.Target, uri, req.Parent)
	}
}
