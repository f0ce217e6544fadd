package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/caldelete/server/lock"
	"github.com/cyp0633/caldelete/server/scheduling"
	"github.com/cyp0633/caldelete/server/storage"
	"github.com/samber/mo"
)

// member is a resource being deleted on its own or as a child of a collection.
type member struct {
	res    storage.Resource
	uri    string
	parent storage.Collection
	// scheduleTagMatch is only set for the request target.
	scheduleTagMatch string
}

// usage is the quota state captured before a delete.
type usage struct {
	limit mo.Option[int64]
	size  int64
}

func quotaBefore(ctx context.Context, res storage.Resource) (usage, error) {
	limit, err := res.Quota(ctx)
	if err != nil {
		return usage{}, fmt.Errorf("failed to read quota of %s: %w", res.URI(), err)
	}
	u := usage{limit: limit}
	if limit.IsPresent() {
		if u.size, err = res.QuotaSize(ctx); err != nil {
			return usage{}, fmt.Errorf("failed to read quota size of %s: %w", res.URI(), err)
		}
	}
	return u, nil
}

// remove performs the physical delete of m and, when it fully succeeded,
// returns the quota and records the removal in the parent.
func (o *Orchestrator) remove(ctx context.Context, m member, depth storage.Depth, before usage) (Outcome, error) {
	outcome, err := outcomeOf(o.store.Delete(ctx, m.uri, m.res, depth))
	if err != nil {
		return Outcome{}, err
	}
	if !outcome.OK() {
		o.logger.Warn("delete left members behind",
			"uri", m.uri,
			"failed", len(outcome.Failures))
		return outcome, nil
	}

	if before.limit.IsPresent() && before.size != 0 {
		if err := m.res.AdjustQuota(ctx, -before.size); err != nil {
			return Outcome{}, fmt.Errorf("failed to adjust quota of %s: %w", m.uri, err)
		}
	}
	if err := o.recordRemoval(ctx, m); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// recordRemoval advances the parent's sync token and drops m from its index.
// Only sync collections track their members.
func (o *Orchestrator) recordRemoval(ctx context.Context, m member) error {
	if m.parent == nil || !m.parent.Kind().IsSyncCollection() {
		return nil
	}
	revision, err := m.parent.BumpSyncToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to bump sync token of %s: %w", m.parent.URI(), err)
	}
	if err := m.parent.Index().DeleteResource(ctx, m.res.Name(), revision); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", m.uri, err)
	}
	o.logger.Debug("removal recorded",
		"collection", m.parent.URI(),
		"name", m.res.Name(),
		"revision", revision)
	return nil
}

// deleteResource deletes a resource without scheduling semantics.
func (o *Orchestrator) deleteResource(ctx context.Context, req *Request, res storage.Resource, uri string, parent storage.Collection) (Outcome, error) {
	m := member{res: res, uri: uri, parent: parent}
	before, err := quotaBefore(ctx, res)
	if err != nil {
		return Outcome{}, err
	}
	return o.remove(ctx, m, req.Depth, before)
}

// deleteCalendarResource deletes a calendar object, serializing on its UID and
// notifying other participants when the object is a scheduling object.
func (o *Orchestrator) deleteCalendarResource(ctx context.Context, req *Request, m member) (Outcome, error) {
	if err := o.precondition.Check(ctx, m.res, m.scheduleTagMatch, req.Internal); err != nil {
		return Outcome{}, err
	}
	before, err := quotaBefore(ctx, m.res)
	if err != nil {
		return Outcome{}, err
	}

	var action scheduling.Action
	if !req.Internal && req.AllowImplicitScheduling {
		if action, err = o.evaluate(ctx, m); err != nil {
			return Outcome{}, err
		}
	}

	var locker lock.Locker
	if action != nil {
		if m.parent != nil {
			virtual, err := m.parent.IsVirtualShare(ctx)
			if err != nil {
				return Outcome{}, err
			}
			if virtual {
				o.logger.Warn("sharee attempted scheduling delete", "uri", m.uri)
				return Outcome{}, shareeCannotSchedule(m.uri)
			}
		}
		locker = o.locks.NewLock(o.config.LockClass, lockKey(action, m.uri), o.config.LockTimeout)
	}

	return o.withLock(ctx, m.uri, locker, func(ctx context.Context) (Outcome, error) {
		outcome, err := o.remove(ctx, m, req.Depth, before)
		if err != nil || !outcome.OK() {
			return outcome, err
		}
		if action != nil {
			if err := action.Notify(ctx); err != nil {
				return Outcome{}, fmt.Errorf("implicit scheduling for %s: %w", m.uri, err)
			}
			o.metrics.notified()
			o.logger.Info("implicit scheduling sent", "uri", m.uri, "uid", action.UID())
		}
		return outcome, nil
	})
}

// lockKey serializes scheduling per UID. Objects without a UID lock on their
// own URI so they never contend with each other.
func lockKey(action scheduling.Action, uri string) string {
	if uid := action.UID(); uid != "" {
		return uid
	}
	return uri
}

func (o *Orchestrator) evaluate(ctx context.Context, m member) (scheduling.Action, error) {
	obj, ok := m.res.(storage.CalendarObject)
	if !ok {
		return nil, nil
	}
	cal, err := obj.CalendarData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar data of %s: %w", m.uri, err)
	}
	return o.trigger.Evaluate(ctx, obj, cal)
}

// withLock runs body holding l. A nil l runs body unlocked. The lock is
// released on every path; a release failure after a successful body is only
// logged, after a failed body it is folded into the returned error.
func (o *Orchestrator) withLock(ctx context.Context, uri string, l lock.Locker, body func(context.Context) (Outcome, error)) (outcome Outcome, err error) {
	if l == nil {
		return body(ctx)
	}

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			o.metrics.lockTimedOut()
			o.logger.Warn("scheduling object lock timed out", "uri", uri, "error", err)
			return Outcome{}, resourceInUse(uri, err)
		}
		return Outcome{}, err
	}
	o.metrics.lockAcquired(time.Since(start))
	o.logger.Debug("scheduling object locked", "uri", uri, "wait", time.Since(start))

	defer func() {
		if err != nil {
			err = lock.Release(ctx, l, err)
			return
		}
		if relErr := l.Release(ctx); relErr != nil {
			o.logger.Error("failed to release scheduling object lock", "uri", uri, "error", relErr)
		}
	}()
	return body(ctx)
}
