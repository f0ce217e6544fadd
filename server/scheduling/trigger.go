// Package scheduling decides whether removing a calendar object must notify
// other participants, and performs the notification once the removal has
// committed.
package scheduling

import (
	"context"
	"strings"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/emersion/go-ical"
)

// Action is a pending implicit scheduling operation for one scheduling object.
type Action interface {
	// UID is the iCalendar UID of the scheduling object, used to key the lock.
	UID() string
	// Notify sends the notification. It must only be called after the delete
	// committed, and sends at most once.
	Notify(ctx context.Context) error
}

// Trigger evaluates a scheduling object that is about to be deleted.
type Trigger interface {
	// Evaluate returns the Action deleting obj requires, or nil if no other
	// participant needs to hear about it.
	Evaluate(ctx context.Context, obj storage.CalendarObject, cal *ical.Calendar) (Action, error)
}

// Nop never triggers implicit scheduling.
type Nop struct{}

func (Nop) Evaluate(context.Context, storage.CalendarObject, *ical.Calendar) (Action, error) {
	return nil, nil
}

// ResourceUID returns the UID shared by the components of a calendar object
// resource, or "" if it has none.
func ResourceUID(cal *ical.Calendar) string {
	if cal == nil {
		return ""
	}
	for _, comp := range cal.Children {
		if uid := comp.Props.Get(ical.PropUID); uid != nil && uid.Value != "" {
			return uid.Value
		}
	}
	return ""
}

// normalizeAddress makes calendar user addresses comparable.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) >= 7 && strings.EqualFold(addr[:7], "mailto:") {
		addr = addr[7:]
	}
	return strings.ToLower(addr)
}
