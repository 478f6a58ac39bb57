// Package ical converts between RFC 5545 calendar documents and the
// item model. Parsing accepts exactly one VTODO or one VEVENT per
// document and preserves every property it does not recognize, so
// Serialize can reconstruct the original without loss.
package ical

import (
	"fmt"
	"net/url"
	"strings"

	ics "github.com/arran4/golang-ical"

	"larder/item"
)

// Parse converts one iCalendar document into an Item. itemURL anchors
// the item's identity and shows up in every diagnostic; syncStatus is
// attached verbatim since only the caller knows which remote revision
// the text came from.
func Parse(content string, itemURL *url.URL, syncStatus item.SyncStatus) (item.Item, error) {
	blocks := splitCalendarBlocks(content)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("invalid iCal data to parse for item %s", itemURL)
	}
	cal, err := ics.ParseCalendar(strings.NewReader(blocks[0]))
	if err != nil {
		return nil, fmt.Errorf("unable to parse iCal data for item %s: %w", itemURL, err)
	}

	prodID := calendarProdID(cal)
	events, todos, journals := splitComponents(cal)

	var built item.Item
	switch {
	case len(events) == 1 && len(todos) == 0 && journals == 0:
		builder := newEventBuilder(itemURL)
		for _, prop := range events[0].Properties {
			builder.addProperty(prop)
		}
		event, err := builder.build(syncStatus, prodID)
		if err != nil {
			return nil, err
		}
		built = event
	case len(todos) == 1 && len(events) == 0 && journals == 0:
		builder := newTaskBuilder(itemURL)
		for _, prop := range todos[0].Properties {
			builder.addProperty(prop)
		}
		task, err := builder.build(syncStatus, prodID)
		if err != nil {
			return nil, err
		}
		built = task
	default:
		return nil, ErrUnsupportedComponents
	}

	// a second well-formed document means the caller handed us a feed,
	// not an item; a second block of garbage is skipped like any other
	// trailing noise
	if len(blocks) > 1 {
		if _, err := ics.ParseCalendar(strings.NewReader(blocks[1])); err == nil {
			return nil, ErrMultipleCalendars
		}
	}

	return built, nil
}

func splitComponents(cal *ics.Calendar) (events []*ics.VEvent, todos []*ics.VTodo, journals int) {
	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *ics.VEvent:
			events = append(events, c)
		case *ics.VTodo:
			todos = append(todos, c)
		case *ics.VJournal:
			journals++
		}
	}
	return events, todos, journals
}

// calendarProdID pulls PRODID from the calendar-level properties,
// substituting the local default when the generator left it out.
func calendarProdID(cal *ics.Calendar) string {
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == "PRODID" {
			return prop.Value
		}
	}
	return item.DefaultProdID
}

// splitCalendarBlocks cuts raw input into its top-level VCALENDAR
// blocks. Anything outside BEGIN:VCALENDAR/END:VCALENDAR is skipped
// the way streaming iCal readers skip surrounding noise; an
// unterminated final block is kept so the decoder can report it.
func splitCalendarBlocks(content string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case !inBlock && line == "BEGIN:VCALENDAR":
			inBlock = true
			current.Reset()
			current.WriteString(line)
			current.WriteString("\r\n")
		case inBlock:
			current.WriteString(line)
			current.WriteString("\r\n")
			if line == "END:VCALENDAR" {
				blocks = append(blocks, current.String())
				inBlock = false
			}
		}
	}
	if inBlock {
		blocks = append(blocks, current.String())
	}
	return blocks
}

func copyProperty(prop ics.IANAProperty) item.Property {
	out := item.Property{Name: prop.IANAToken, Value: prop.Value}
	if len(prop.ICalParameters) > 0 {
		out.Params = make(map[string][]string, len(prop.ICalParameters))
		for k, v := range prop.ICalParameters {
			out.Params[k] = append([]string(nil), v...)
		}
	}
	return out
}
