package main

import (
	"fmt"
	"time"

	"github.com/cyp0633/caldelete/server/storage/memory"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
)

const samplePassword = "password"

// seed fills store with sample users, calendars, events and contacts. Alice
// organizes a meeting with Bob, so deleting it from either side schedules.
func seed(store *memory.Store) error {
	for _, u := range []struct{ id, address string }{
		{"alice", "mailto:alice@example.com"},
		{"bob", "mailto:bob@example.com"},
	} {
		if err := store.AddUser(u.id, samplePassword, u.address); err != nil {
			return err
		}
		store.SetQuota(u.id, 10<<20)
	}

	now := time.Now()
	meeting := createEvent("Client Meeting", "Client HQ", now.Add(5*24*time.Hour), 3*time.Hour,
		"mailto:alice@example.com", []string{"mailto:bob@example.com"})
	calendars := []struct {
		user, id string
		isDefault bool
		events    []*ical.Calendar
	}{
		{"alice", "default", true, []*ical.Calendar{
			createEvent("Doctor Appointment", "Medical Center", now.Add(48*time.Hour), time.Hour, "", nil),
		}},
		{"alice", "work", false, []*ical.Calendar{
			createEvent("Project Review", "Office", now.Add(3*24*time.Hour), 2*time.Hour, "", nil),
			meeting,
		}},
		{"bob", "default", true, []*ical.Calendar{
			createEvent("Gym", "Fitness Center", now.Add(30*time.Hour), 2*time.Hour, "", nil),
		}},
		{"bob", "family", false, []*ical.Calendar{
			createEvent("Family Dinner", "Home", now.Add(4*24*time.Hour), 3*time.Hour, "", nil),
		}},
	}
	for _, c := range calendars {
		calURI, err := store.CreateCalendar(c.user, c.id, c.isDefault)
		if err != nil {
			return err
		}
		for _, ev := range c.events {
			name := fmt.Sprintf("%s.ics", uuid.New().String()[:8])
			if _, err := store.PutCalendarObject(calURI, name, ev, ""); err != nil {
				return err
			}
		}
	}

	// Bob receives Alice's meeting as an attendee.
	bobCal, err := store.CreateCalendar("bob", "invites", false)
	if err != nil {
		return err
	}
	if _, err := store.PutCalendarObject(bobCal, "invite.ics", meeting, ""); err != nil {
		return err
	}

	contacts, err := store.CreateAddressBook("alice", "contacts")
	if err != nil {
		return err
	}
	for _, name := range []string{"Bob Johnson", "Carol White"} {
		card := make(vcard.Card)
		card.SetValue(vcard.FieldFormattedName, name)
		card.SetValue(vcard.FieldUID, "urn:uuid:"+uuid.New().String())
		vcard.ToV4(card)
		if _, err := store.PutAddressObject(contacts, uuid.New().String()[:8]+".vcf", card); err != nil {
			return err
		}
	}

	// Alice shares her work calendar with Bob.
	_, err = store.Share("/alice/cal/work", "bob")
	return err
}

// createEvent is a helper function to create a calendar event
func createEvent(summary, location string, start time.Time, d time.Duration, organizer string, attendees []string) *ical.Calendar {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uuid.New().String())
	event.Props.SetText(ical.PropSummary, summary)
	event.Props.SetText(ical.PropLocation, location)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(d).UTC())
	if organizer != "" {
		prop := ical.NewProp(ical.PropOrganizer)
		prop.Value = organizer
		event.Props.Add(prop)
	}
	for _, addr := range attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = addr
		event.Props.Add(prop)
	}

	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, event.Component)
	return cal
}
