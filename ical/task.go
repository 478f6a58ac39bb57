package ical

import (
	"log/slog"
	"net/url"
	"time"

	ics "github.com/arran4/golang-ical"

	"larder/item"
)

// taskBuilder accumulates VTODO properties one at a time. Routing a
// property never fails; validation happens once in build.
type taskBuilder struct {
	url            *url.URL
	name           string
	uid            string
	completed      bool
	completionDate *time.Time
	lastModified   *time.Time
	created        *time.Time
	custom         []item.Property
}

func newTaskBuilder(u *url.URL) *taskBuilder {
	return &taskBuilder{url: u}
}

func (b *taskBuilder) addProperty(prop ics.IANAProperty) {
	switch prop.IANAToken {
	case "SUMMARY":
		b.name = prop.Value
	case "UID":
		b.uid = prop.Value
	case "DTSTAMP", "LAST-MODIFIED":
		// both describe the item's revision time; last occurrence wins
		b.lastModified = propDateTime(prop)
	case "COMPLETED":
		b.completionDate = propDateTime(prop)
	case "CREATED":
		b.created = propDateTime(prop)
	case "STATUS":
		if prop.Value == "COMPLETED" {
			b.completed = true
		}
	default:
		b.custom = append(b.custom, copyProperty(prop))
	}
}

func (b *taskBuilder) build(sync item.SyncStatus, prodID string) (*item.Task, error) {
	if b.name == "" {
		return nil, missingField("SUMMARY", b.url)
	}
	if b.uid == "" {
		return nil, missingField("UID", b.url)
	}
	if b.lastModified == nil {
		return nil, missingField("DTSTAMP", b.url)
	}

	completion := item.Uncompleted()
	if b.completed {
		completion = item.Completed(b.completionDate)
	} else if b.completionDate != nil {
		slog.Warn("task has a COMPLETED timestamp but its STATUS is not completed, dropping the timestamp",
			"uid", b.uid,
			"completed", b.completionDate.Format(time.RFC3339))
	}

	return &item.Task{
		URL:              b.url,
		UID:              b.uid,
		Name:             b.name,
		Completion:       completion,
		Sync:             sync,
		ProdID:           prodID,
		Created:          b.created,
		LastModified:     *b.lastModified,
		CustomProperties: b.custom,
	}, nil
}
