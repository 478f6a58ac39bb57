// Package storage persists calendar collections and their items in
// SQLite through bun. The raw iCalendar text is the source of truth;
// typed columns exist for queries and listings.
package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Calendar is one remote collection we track.
type Calendar struct {
	bun.BaseModel `bun:"table:calendars"`

	URL       string `bun:"url,pk"`         // required
	Name      string `bun:"name"`
	Source    string `bun:"source,notnull"` // required
	CTag      string `bun:"ctag"`
	SyncToken string `bun:"sync_token"`
}

func (c *Calendar) Upsert(ctx context.Context, db bun.IDB) error {
	if db == nil {
		return fmt.Errorf("(*Calendar).Upsert: db is nil")
	}

	// validate
	switch {
	case c.URL == "":
		return fmt.Errorf("(*Calendar).Upsert: calendar url is blank")
	case c.Source == "":
		return fmt.Errorf("(*Calendar).Upsert: calendar source is blank")
	}

	// upsert
	if _, err := db.NewInsert().
		Model(c).
		On("CONFLICT (url) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("source = EXCLUDED.source").
		Set("ctag = EXCLUDED.ctag").
		Set("sync_token = EXCLUDED.sync_token").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Calendar).Upsert: can't upsert calendar: %w", err)
	}

	return nil
}
