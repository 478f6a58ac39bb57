package ical

import (
	"net/url"
	"time"

	ics "github.com/arran4/golang-ical"

	"larder/item"
)

// eventBuilder accumulates VEVENT properties, mirroring taskBuilder.
type eventBuilder struct {
	url          *url.URL
	name         string
	description  string
	uid          string
	lastModified *time.Time
	created      *time.Time
	start        *time.Time
	end          *time.Time
	custom       []item.Property
}

func newEventBuilder(u *url.URL) *eventBuilder {
	return &eventBuilder{url: u}
}

func (b *eventBuilder) addProperty(prop ics.IANAProperty) {
	switch prop.IANAToken {
	case "SUMMARY":
		b.name = prop.Value
	case "DESCRIPTION":
		b.description = prop.Value
	case "UID":
		b.uid = prop.Value
	case "DTSTAMP", "LAST-MODIFIED":
		b.lastModified = propDateTime(prop)
	case "DTSTART":
		b.start = propDateTime(prop)
	case "DTEND":
		b.end = propDateTime(prop)
	case "CREATED":
		b.created = propDateTime(prop)
	default:
		b.custom = append(b.custom, copyProperty(prop))
	}
}

func (b *eventBuilder) build(sync item.SyncStatus, prodID string) (*item.Event, error) {
	if b.name == "" {
		return nil, missingField("SUMMARY", b.url)
	}
	if b.uid == "" {
		return nil, missingField("UID", b.url)
	}
	if b.lastModified == nil {
		return nil, missingField("DTSTAMP", b.url)
	}
	if b.start == nil {
		return nil, missingField("DTSTART", b.url)
	}
	if b.end == nil {
		return nil, missingField("DTEND", b.url)
	}

	return &item.Event{
		URL:              b.url,
		UID:              b.uid,
		Name:             b.name,
		Description:      b.description,
		Start:            *b.start,
		End:              *b.end,
		Sync:             sync,
		ProdID:           prodID,
		Created:          b.created,
		LastModified:     *b.lastModified,
		CustomProperties: b.custom,
	}, nil
}
