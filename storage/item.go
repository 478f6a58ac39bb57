package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/uptrace/bun"

	"larder/ical"
	"larder/item"
)

const (
	KindTask  = "task"
	KindEvent = "event"
)

const (
	SyncStateNotSynced       = "not-synced"
	SyncStateSynced          = "synced"
	SyncStateLocallyModified = "locally-modified"
	SyncStateLocallyDeleted  = "locally-deleted"
)

// Item is one calendar object as persisted locally.
type Item struct {
	bun.BaseModel `bun:"table:items"`

	URL                 string `bun:"url,pk"`               // required
	CalendarURL         string `bun:"calendar_url,notnull"` // required
	UID                 string `bun:"uid,notnull"`          // required
	Kind                string `bun:"kind,notnull"`         // task | event
	Summary             string `bun:"summary"`
	RawIcal             string `bun:"raw_ical,notnull"`
	SyncState           string `bun:"sync_state,notnull"`
	VersionTag          string `bun:"version_tag"`
	LastModifiedUnixUTC int64  `bun:"last_modified_unix_utc"`
}

// NewItem converts a parsed item into its storable row. raw is the
// document text the item was parsed from; pass "" for locally created
// items and the row gets a freshly serialized document instead.
func NewItem(it item.Item, calendarURL string, raw string) *Item {
	if raw == "" {
		raw = ical.Serialize(it)
	}
	kind := KindEvent
	if _, ok := it.(*item.Task); ok {
		kind = KindTask
	}
	return &Item{
		URL:                 it.GetURL().String(),
		CalendarURL:         calendarURL,
		UID:                 it.GetUID(),
		Kind:                kind,
		Summary:             it.GetName(),
		RawIcal:             raw,
		SyncState:           syncStateString(it.GetSyncStatus().State()),
		VersionTag:          string(it.GetSyncStatus().Tag()),
		LastModifiedUnixUTC: it.GetLastModified().UTC().Unix(),
	}
}

// ToItem parses the stored document back into the typed model,
// reattaching the persisted sync status.
func (i *Item) ToItem() (item.Item, error) {
	u, err := url.Parse(i.URL)
	if err != nil {
		return nil, fmt.Errorf("(*Item).ToItem: parse url: %w", err)
	}
	status := item.SyncStatusFrom(syncStateFromString(i.SyncState), item.VersionTag(i.VersionTag))
	parsed, err := ical.Parse(i.RawIcal, u, status)
	if err != nil {
		return nil, fmt.Errorf("(*Item).ToItem: %w", err)
	}
	return parsed, nil
}

func (i *Item) Upsert(ctx context.Context, db bun.IDB) error {
	if db == nil {
		return fmt.Errorf("(*Item).Upsert: db is nil")
	}

	// validate
	switch {
	case i.URL == "":
		return fmt.Errorf("(*Item).Upsert: item url is blank")
	case i.CalendarURL == "":
		return fmt.Errorf("(*Item).Upsert: item calendar url is blank")
	case i.UID == "":
		return fmt.Errorf("(*Item).Upsert: item uid is blank")
	case i.Kind != KindTask && i.Kind != KindEvent:
		return fmt.Errorf("(*Item).Upsert: unknown item kind %q", i.Kind)
	case i.RawIcal == "":
		return fmt.Errorf("(*Item).Upsert: item raw ical is blank")
	case i.SyncState == "":
		return fmt.Errorf("(*Item).Upsert: item sync state is blank")
	}

	// upsert
	if _, err := db.NewInsert().
		Model(i).
		On("CONFLICT (url) DO UPDATE").
		Set("calendar_url = EXCLUDED.calendar_url").
		Set("uid = EXCLUDED.uid").
		Set("kind = EXCLUDED.kind").
		Set("summary = EXCLUDED.summary").
		Set("raw_ical = EXCLUDED.raw_ical").
		Set("sync_state = EXCLUDED.sync_state").
		Set("version_tag = EXCLUDED.version_tag").
		Set("last_modified_unix_utc = EXCLUDED.last_modified_unix_utc").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Item).Upsert: can't upsert item: %w", err)
	}

	return nil
}

func syncStateString(s item.SyncState) string {
	switch s {
	case item.StateSynced:
		return SyncStateSynced
	case item.StateLocallyModified:
		return SyncStateLocallyModified
	case item.StateLocallyDeleted:
		return SyncStateLocallyDeleted
	default:
		return SyncStateNotSynced
	}
}

func syncStateFromString(s string) item.SyncState {
	switch s {
	case SyncStateSynced:
		return item.StateSynced
	case SyncStateLocallyModified:
		return item.StateLocallyModified
	case SyncStateLocallyDeleted:
		return item.StateLocallyDeleted
	default:
		return item.StateNotSynced
	}
}
