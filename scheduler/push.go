package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"larder/caldav"
	"larder/storage"
	"larder/utils"

	"github.com/uptrace/bun"
)

// Push uploads every pending local change to its remote collection:
// new items guarded by If-None-Match, edits by If-Match, deletions as
// conditional DELETE. A lost precondition leaves the row pending so
// the next refresh can surface the newer remote copy.
func Push(ctx context.Context, as *utils.AppState) {
	rows := []storage.Item{}
	if err := as.BunDB.NewSelect().
		Model(&rows).
		Where("sync_state IN (?)", bun.In([]string{
			storage.SyncStateNotSynced,
			storage.SyncStateLocallyModified,
			storage.SyncStateLocallyDeleted,
		})).
		Scan(ctx); err != nil {
		slog.Error("Push: can't list pending items", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	calendars := []storage.Calendar{}
	if err := as.BunDB.NewSelect().Model(&calendars).Scan(ctx); err != nil {
		slog.Error("Push: can't list calendars", "error", err)
		return
	}
	calendarSource := make(map[string]string, len(calendars))
	for _, cal := range calendars {
		calendarSource[cal.URL] = cal.Source
	}
	sourceByName := make(map[string]utils.Source, len(as.Sources))
	for _, source := range as.Sources {
		sourceByName[source.Name] = source
	}

	clients := map[string]*caldav.Client{}
	for _, row := range rows {
		sourceName, ok := calendarSource[row.CalendarURL]
		if !ok {
			slog.Warn("Push: item belongs to an untracked calendar", "url", row.URL, "calendar", row.CalendarURL)
			continue
		}
		source, ok := sourceByName[sourceName]
		if !ok {
			slog.Warn("Push: no configured source for calendar", "calendar", row.CalendarURL, "source", sourceName)
			continue
		}
		client, ok := clients[source.Name]
		if !ok {
			var err error
			client, err = caldav.NewClient(source.URL, source.Username, source.Password)
			if err != nil {
				slog.Warn("Push: can't build client", "source", source.Name, "error", err)
				continue
			}
			clients[source.Name] = client
		}
		if err := pushItem(ctx, as, client, row); err != nil {
			slog.Warn("Push: can't push item", "url", row.URL, "error", err)
		}
	}
}

func pushItem(ctx context.Context, as *utils.AppState, client *caldav.Client, row storage.Item) error {
	target, err := url.Parse(row.URL)
	if err != nil {
		return fmt.Errorf("pushItem: parse url: %w", err)
	}

	switch row.SyncState {
	case storage.SyncStateLocallyDeleted:
		if err := client.DeleteObject(ctx, target, row.VersionTag); err != nil {
			if errors.Is(err, caldav.ErrPreconditionFailed) {
				slog.Warn("pushItem: remote copy changed, keeping the deletion pending", "url", row.URL)
				return nil
			}
			return err
		}
		if _, err := as.BunDB.NewDelete().
			Model((*storage.Item)(nil)).
			Where("url = ?", row.URL).
			Exec(ctx); err != nil {
			return err
		}

	case storage.SyncStateNotSynced, storage.SyncStateLocallyModified:
		var newTag string
		if row.SyncState == storage.SyncStateNotSynced {
			newTag, err = client.PutObject(ctx, target, row.RawIcal, "", true)
		} else {
			newTag, err = client.PutObject(ctx, target, row.RawIcal, row.VersionTag, false)
		}
		if err != nil {
			if errors.Is(err, caldav.ErrPreconditionFailed) {
				slog.Warn("pushItem: remote copy changed, keeping the local copy pending", "url", row.URL)
				return nil
			}
			return err
		}
		if newTag == "" {
			// server withheld the etag; refetch to learn the stored revision
			if obj, err := client.GetObject(ctx, target); err == nil {
				newTag = obj.ETag
			}
		}
		row.SyncState = storage.SyncStateSynced
		row.VersionTag = newTag

		writeStart := time.Now()
		if err := row.Upsert(ctx, as.BunDB); err != nil {
			return err
		}
		if as.MetricChans != nil {
			select {
			case as.MetricChans.DatabaseWrite <- float64(time.Since(writeStart).Microseconds()):
			default:
			}
		}
	}

	return nil
}
