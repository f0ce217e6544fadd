package deletion

import (
	"context"
	"path"

	"github.com/cyp0633/caldelete/server/storage"
)

// childDelete deletes one member of a collection.
type childDelete func(ctx context.Context, m member) (Outcome, error)

// deleteChildren applies del to every child of col in listing order. A failing
// child is recorded in agg and never stops its siblings.
//
// A recorded failure does not keep the child alive: the recursive removal of
// col that follows still takes it unless the store itself refuses. A child
// rejected with 409 because its UID lock was busy is therefore gone afterwards
// and no scheduling message is sent for it.
func (o *Orchestrator) deleteChildren(ctx context.Context, col storage.Collection, uri string, agg *Aggregator, del childDelete) error {
	names, err := col.ListChildren(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		childURI := path.Join(uri, name)
		child, err := o.store.LocateChild(ctx, col, name)
		if err == nil {
			var outcome Outcome
			outcome, err = del(ctx, member{res: child, uri: childURI, parent: col})
			agg.Merge(outcome)
		}
		if err != nil {
			o.logger.Warn("failed to delete member",
				"collection", uri,
				"uri", childURI,
				"error", err)
			agg.Add(childURI, childStatus(err))
			o.metrics.childFailed()
		}
	}
	return nil
}

// deleteSyncCollection is the common body of calendar and address book
// collection deletes, run after the kind specific policy checks passed.
func (o *Orchestrator) deleteSyncCollection(ctx context.Context, req *Request, col storage.Collection, uri string, parent storage.Collection, del childDelete) (Outcome, bool, error) {
	if req.Depth != storage.DepthInfinity {
		return Outcome{}, false, illegalDepth(req.Depth)
	}

	virtual, err := col.IsVirtualShare(ctx)
	if err != nil {
		return Outcome{}, false, err
	}
	if virtual {
		if err := col.RemoveVirtualShare(ctx); err != nil {
			return Outcome{}, false, err
		}
		o.logger.Info("virtual share removed", "uri", uri)
		return noContent(), true, nil
	}

	agg := NewAggregator(uri)
	if err := o.deleteChildren(ctx, col, uri, agg, del); err != nil {
		return Outcome{}, false, err
	}

	shared, err := col.IsShared(ctx)
	if err != nil {
		return Outcome{}, false, err
	}
	if shared {
		if err := col.DowngradeFromShare(ctx); err != nil {
			return Outcome{}, false, err
		}
	}
	if _, err := col.BumpSyncToken(ctx); err != nil {
		return Outcome{}, false, err
	}

	outcome, err := o.deleteResource(ctx, req, col, uri, parent)
	if err != nil {
		return Outcome{}, false, err
	}
	agg.Merge(outcome)
	return agg.Outcome(), false, nil
}

// deleteCalendar deletes a calendar collection and every object in it.
func (o *Orchestrator) deleteCalendar(ctx context.Context, req *Request, cal storage.CalendarCollection, uri string, parent storage.Collection) (Outcome, error) {
	isDefault, err := cal.IsDefaultCalendar(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if isDefault {
		o.logger.Warn("refusing to delete default calendar", "uri", uri)
		return Outcome{}, defaultCalendarProtected(uri)
	}

	outcome, unshared, err := o.deleteSyncCollection(ctx, req, cal, uri, parent, func(ctx context.Context, m member) (Outcome, error) {
		return o.deleteCalendarResource(ctx, req, m)
	})
	if err != nil || unshared || !outcome.OK() {
		return outcome, err
	}
	if err := cal.DeletedCalendar(ctx); err != nil {
		return Outcome{}, err
	}
	o.logger.Info("calendar deleted", "uri", uri)
	return outcome, nil
}

// deleteCollection deletes a plain collection. Calendars and address books
// below it go through their own strategies first so their members get the
// same bookkeeping as a direct delete.
func (o *Orchestrator) deleteCollection(ctx context.Context, req *Request, col storage.Collection, uri string, parent storage.Collection) (Outcome, error) {
	if req.Depth != storage.DepthInfinity {
		return Outcome{}, illegalDepth(req.Depth)
	}

	agg := NewAggregator(uri)
	err := o.store.WalkCalendarCollections(ctx, col, func(ctx context.Context, cal storage.CalendarCollection) error {
		calParent, err := o.store.LocateParent(ctx, cal.URI())
		if err != nil {
			return err
		}
		outcome, err := o.deleteCalendar(ctx, req, cal, cal.URI(), calParent)
		if err != nil {
			return err
		}
		agg.Merge(outcome)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if err := o.deleteCollectionAB(ctx, req, col, agg); err != nil {
		return Outcome{}, err
	}

	outcome, err := o.deleteResource(ctx, req, col, uri, parent)
	if err != nil {
		return Outcome{}, err
	}
	agg.Merge(outcome)
	return agg.Outcome(), nil
}
