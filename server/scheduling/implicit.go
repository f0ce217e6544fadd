package scheduling

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const (
	MethodCancel = "CANCEL"
	MethodReply  = "REPLY"
)

// Message is an iTIP message produced by an implicit delete.
type Message struct {
	ID         string
	Method     string
	UID        string
	Originator string
	Recipients []string
	Calendar   *ical.Calendar
}

// Directory maps users to their calendar user address.
type Directory interface {
	Address(ctx context.Context, userID string) (string, error)
}

// Notifier delivers iTIP messages.
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// Implicit is a Trigger for organizer and attendee deletes. An organizer
// deleting an event cancels it for every attendee; an attendee deleting it
// declines to the organizer.
type Implicit struct {
	directory Directory
	notifier  Notifier
	logger    *slog.Logger
}

var _ Trigger = (*Implicit)(nil)

// NewImplicit creates an implicit scheduler.
func NewImplicit(directory Directory, notifier Notifier, logger *slog.Logger) *Implicit {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Implicit{directory: directory, notifier: notifier, logger: logger}
}

// schedulingComponents returns the VEVENT/VTODO components carrying an ORGANIZER.
func schedulingComponents(cal *ical.Calendar) []*ical.Component {
	var comps []*ical.Component
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent && comp.Name != ical.CompToDo {
			continue
		}
		if comp.Props.Get(ical.PropOrganizer) != nil {
			comps = append(comps, comp)
		}
	}
	return comps
}

func (s *Implicit) Evaluate(ctx context.Context, obj storage.CalendarObject, cal *ical.Calendar) (Action, error) {
	if cal == nil {
		return nil, nil
	}
	comps := schedulingComponents(cal)
	if len(comps) == 0 {
		return nil, nil
	}

	owner, err := s.directory.Address(ctx, obj.Owner())
	if err != nil {
		return nil, fmt.Errorf("failed to look up address of %s: %w", obj.Owner(), err)
	}
	owner = normalizeAddress(owner)
	organizer := comps[0].Props.Get(ical.PropOrganizer).Value

	action := &implicitAction{
		scheduler:  s,
		uid:        ResourceUID(cal),
		originator: owner,
		comps:      comps,
	}

	if normalizeAddress(organizer) == owner {
		seen := make(map[string]bool)
		for _, comp := range comps {
			for _, attendee := range comp.Props.Values(ical.PropAttendee) {
				addr := normalizeAddress(attendee.Value)
				if addr == owner || seen[addr] {
					continue
				}
				seen[addr] = true
				action.recipients = append(action.recipients, attendee.Value)
			}
		}
		if len(action.recipients) == 0 {
			return nil, nil
		}
		action.method = MethodCancel
		return action, nil
	}

	for _, attendee := range comps[0].Props.Values(ical.PropAttendee) {
		if normalizeAddress(attendee.Value) == owner {
			action.method = MethodReply
			action.recipients = []string{organizer}
			return action, nil
		}
	}

	// The owner is neither organizer nor attendee; nobody to tell.
	return nil, nil
}

type implicitAction struct {
	scheduler  *Implicit
	uid        string
	method     string
	originator string
	recipients []string
	comps      []*ical.Component

	once sync.Once
	err  error
}

func (a *implicitAction) UID() string {
	return a.uid
}

func (a *implicitAction) Notify(ctx context.Context) error {
	a.once.Do(func() {
		msg := &Message{
			ID:         uuid.NewString(),
			Method:     a.method,
			UID:        a.uid,
			Originator: a.originator,
			Recipients: slices.Clone(a.recipients),
			Calendar:   a.build(),
		}
		a.scheduler.logger.Info("sending implicit scheduling message",
			"method", msg.Method,
			"uid", msg.UID,
			"recipients", len(msg.Recipients))
		if err := a.scheduler.notifier.Send(ctx, msg); err != nil {
			a.err = fmt.Errorf("failed to send %s for %s: %w", msg.Method, msg.UID, err)
		}
	})
	return a.err
}

func (a *implicitAction) build() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, storage.ProductID)
	cal.Props.SetText(ical.PropMethod, a.method)

	now := time.Now().UTC()
	for _, comp := range a.comps {
		var out *ical.Component
		if a.method == MethodCancel {
			out = cancelComponent(comp)
		} else {
			out = replyComponent(comp, a.originator)
		}
		out.Props.SetDateTime(ical.PropDateTimeStamp, now)
		cal.Children = append(cal.Children, out)
	}
	return cal
}

func cloneProps(props ical.Props) ical.Props {
	out := make(ical.Props, len(props))
	for name, values := range props {
		cloned := make([]ical.Prop, len(values))
		for i, v := range values {
			v.Params = maps.Clone(v.Params)
			cloned[i] = v
		}
		out[name] = cloned
	}
	return out
}

func cancelComponent(comp *ical.Component) *ical.Component {
	out := ical.NewComponent(comp.Name)
	out.Props = cloneProps(comp.Props)
	out.Props.SetText(ical.PropStatus, "CANCELLED")

	sequence := 0
	if p := comp.Props.Get(ical.PropSequence); p != nil {
		if n, err := strconv.Atoi(p.Value); err == nil {
			sequence = n
		}
	}
	seq := ical.NewProp(ical.PropSequence)
	seq.Value = strconv.Itoa(sequence + 1)
	out.Props.Set(seq)
	return out
}

func replyComponent(comp *ical.Component, attendeeAddr string) *ical.Component {
	out := ical.NewComponent(comp.Name)
	for _, name := range []string{ical.PropUID, ical.PropOrganizer, ical.PropRecurrenceID, ical.PropSequence, ical.PropDateTimeStart} {
		if p := comp.Props.Get(name); p != nil {
			cp := *p
			cp.Params = maps.Clone(p.Params)
			out.Props.Set(&cp)
		}
	}
	for _, attendee := range comp.Props.Values(ical.PropAttendee) {
		if normalizeAddress(attendee.Value) != attendeeAddr {
			continue
		}
		attendee.Params = maps.Clone(attendee.Params)
		if attendee.Params == nil {
			attendee.Params = make(ical.Params)
		}
		attendee.Params.Set(ical.ParamParticipationStatus, "DECLINED")
		out.Props.Add(&attendee)
		break
	}
	return out
}
