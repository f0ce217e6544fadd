package deletion

import (
	"context"

	"github.com/cyp0633/caldelete/server/storage"
)

// deleteAddressBookResource deletes a vCard. Address objects never schedule,
// so there is no lock and no trigger.
func (o *Orchestrator) deleteAddressBookResource(ctx context.Context, req *Request, res storage.Resource, uri string, parent storage.Collection) (Outcome, error) {
	return o.deleteResource(ctx, req, res, uri, parent)
}

// deleteAddressBook deletes an address book collection and its vCards.
func (o *Orchestrator) deleteAddressBook(ctx context.Context, req *Request, ab storage.Collection, uri string, parent storage.Collection) (Outcome, error) {
	outcome, _, err := o.deleteSyncCollection(ctx, req, ab, uri, parent, func(ctx context.Context, m member) (Outcome, error) {
		return o.deleteAddressBookResource(ctx, req, m.res, m.uri, m.parent)
	})
	if err == nil && outcome.OK() {
		o.logger.Info("address book deleted", "uri", uri)
	}
	return outcome, err
}

// deleteCollectionAB deletes every address book below col into agg.
func (o *Orchestrator) deleteCollectionAB(ctx context.Context, req *Request, col storage.Collection, agg *Aggregator) error {
	return o.store.WalkAddressBookCollections(ctx, col, func(ctx context.Context, ab storage.Collection) error {
		abParent, err := o.store.LocateParent(ctx, ab.URI())
		if err != nil {
			return err
		}
		outcome, err := o.deleteAddressBook(ctx, req, ab, ab.URI(), abParent)
		if err != nil {
			return err
		}
		agg.Merge(outcome)
		return nil
	})
}
