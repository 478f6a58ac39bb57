// Package scheduler runs the periodic pull and push rounds that keep
// local storage and the remote CalDAV collections aligned.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"larder/caldav"
	"larder/ical"
	"larder/item"
	"larder/metric"
	"larder/storage"
	"larder/utils"
)

const (
	WORKER_COUNT = 4
)

// Refresh pulls every configured source into local storage. from/to
// bound the event listing window; task listings are unwindowed. Rows
// with pending local changes are never overwritten here, Push settles
// those first.
func Refresh(ctx context.Context, as *utils.AppState, from, to time.Time) {
	for _, source := range as.Sources {
		client, err := caldav.NewClient(source.URL, source.Username, source.Password)
		if err != nil {
			slog.Warn("Refresh: can't build client", "source", source.Name, "error", err)
			continue
		}

		collections, err := client.FindCalendars(ctx)
		if err != nil {
			slog.Warn("Refresh: discovery failed, treating the endpoint as a collection", "source", source.Name, "error", err)
			collections = []caldav.Collection{{URL: client.Endpoint(), Name: source.Name}}
		}
		if len(collections) == 0 {
			slog.Warn("Refresh: source has no collections", "source", source.Name)
			continue
		}

		jobs := make(chan caldav.Collection, len(collections))
		var wg sync.WaitGroup

		for range WORKER_COUNT {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for collection := range jobs {
					doneCh := make(chan struct{})
					errCh := make(chan error)

					go func() {
						if err := refreshCollection(ctx, as, client, source, collection, from, to); err != nil {
							errCh <- err
							return
						}
						doneCh <- struct{}{}
					}()

					select {
					case <-time.After(time.Minute * 5):
						slog.Warn("Refresh: timed out waiting for collection to be fetched", "collection", collection.URL)
					case err := <-errCh:
						slog.Warn("Refresh: can't refresh collection", "collection", collection.URL, "error", err)
					case <-doneCh:
					}
				}
			}()
		}

		for _, collection := range collections {
			jobs <- collection
		}
		close(jobs)
		wg.Wait()
	}
}

func refreshCollection(ctx context.Context, as *utils.AppState, client *caldav.Client, source utils.Source, collection caldav.Collection, from, to time.Time) error {
	fetchStart := time.Now()

	calRow := storage.Calendar{
		URL:    collection.URL.String(),
		Name:   collection.Name,
		Source: source.Name,
	}
	existing := storage.Calendar{}
	if err := as.BunDB.NewSelect().
		Model(&existing).
		Where("url = ?", calRow.URL).
		Scan(ctx); err == nil {
		calRow.CTag = existing.CTag
		calRow.SyncToken = existing.SyncToken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("refreshCollection: can't load calendar: %w", err)
	}

	remoteCTag, err := client.GetCTag(ctx, collection.URL)
	if err != nil {
		slog.Debug("refreshCollection: can't get ctag", "collection", calRow.URL, "error", err)
	} else if remoteCTag != "" && remoteCTag == calRow.CTag {
		slog.Debug("refreshCollection: collection unchanged", "collection", calRow.URL)
		return nil
	}

	// RFC 6578 incremental sync when the server supports it; the empty
	// token on first contact asks for the whole collection
	var changed []caldav.Object
	var deletedURLs []string
	fullListing := false
	if changes, err := client.SyncCollection(ctx, collection.URL, calRow.SyncToken); err == nil {
		changed = changes.Changed
		for _, u := range changes.Deleted {
			deletedURLs = append(deletedURLs, u.String())
		}
		calRow.SyncToken = changes.SyncToken
	} else {
		slog.Warn("refreshCollection: sync-collection failed, falling back to a full listing", "collection", calRow.URL, "error", err)
		calRow.SyncToken = ""
		fullListing = true

		todos, err := client.ListObjects(ctx, collection.URL, "VTODO", time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("refreshCollection: can't list tasks: %w", err)
		}
		events, err := client.ListObjects(ctx, collection.URL, "VEVENT", from, to)
		if err != nil {
			return fmt.Errorf("refreshCollection: can't list events: %w", err)
		}
		changed = append(todos, events...)
	}

	if as.MetricChans != nil {
		select {
		case as.MetricChans.CaldavFetch <- float64(time.Since(fetchStart).Microseconds()):
		default:
		}
	}

	writeStart := time.Now()
	if err := as.BunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		listed := make(map[string]struct{}, len(changed))
		for _, obj := range changed {
			listed[obj.URL.String()] = struct{}{}
			if err := applyRemoteObject(ctx, tx, calRow.URL, obj); err != nil {
				slog.Warn("refreshCollection: can't apply remote object", "url", obj.URL, "error", err)
			}
		}
		for _, itemURL := range deletedURLs {
			if err := applyRemoteDelete(ctx, tx, itemURL); err != nil {
				slog.Warn("refreshCollection: can't apply remote delete", "url", itemURL, "error", err)
			}
		}
		if fullListing {
			if err := deleteVanishedTasks(ctx, tx, calRow.URL, listed); err != nil {
				return err
			}
		}
		calRow.CTag = remoteCTag
		return calRow.Upsert(ctx, tx)
	}); err != nil {
		return fmt.Errorf("refreshCollection: %w", err)
	}
	if as.MetricChans != nil {
		select {
		case as.MetricChans.DatabaseWrite <- float64(time.Since(writeStart).Microseconds()):
		default:
		}
	}

	return nil
}

// applyRemoteObject stores one fetched object, unless the local row
// carries pending changes, in which case the local copy wins until
// Push has settled it.
func applyRemoteObject(ctx context.Context, db bun.IDB, calendarURL string, obj caldav.Object) error {
	existing := storage.Item{}
	err := db.NewSelect().Model(&existing).Where("url = ?", obj.URL.String()).Scan(ctx)
	switch {
	case err == nil:
		if existing.SyncState != storage.SyncStateSynced {
			slog.Warn("applyRemoteObject: local copy has pending changes, keeping it", "url", obj.URL, "state", existing.SyncState)
			return nil
		}
		if obj.ETag != "" && existing.VersionTag == obj.ETag {
			return nil
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return err
	}

	parsed, err := ical.Parse(obj.Data, obj.URL, item.Synced(item.VersionTag(obj.ETag)))
	if err != nil {
		metric.CountParsed("unknown", "error")
		return err
	}
	kind := storage.KindEvent
	if _, ok := parsed.(*item.Task); ok {
		kind = storage.KindTask
	}
	metric.CountParsed(kind, "ok")

	return storage.NewItem(parsed, calendarURL, obj.Data).Upsert(ctx, db)
}

func applyRemoteDelete(ctx context.Context, db bun.IDB, itemURL string) error {
	existing := storage.Item{}
	if err := db.NewSelect().Model(&existing).Where("url = ?", itemURL).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if existing.SyncState != storage.SyncStateSynced {
		slog.Warn("applyRemoteDelete: local copy has pending changes, keeping it", "url", itemURL, "state", existing.SyncState)
		return nil
	}
	_, err := db.NewDelete().Model((*storage.Item)(nil)).Where("url = ?", itemURL).Exec(ctx)
	return err
}

// deleteVanishedTasks drops synced task rows the full listing no
// longer mentions. Tasks are listed without a window, so a missing
// URL means the remote copy is gone. Events are only pruned through
// sync-collection deletes since the window hides the rest.
func deleteVanishedTasks(ctx context.Context, db bun.IDB, calendarURL string, listed map[string]struct{}) error {
	rows := []storage.Item{}
	if err := db.NewSelect().
		Model(&rows).
		Column("url").
		Where("calendar_url = ?", calendarURL).
		Where("kind = ?", storage.KindTask).
		Where("sync_state = ?", storage.SyncStateSynced).
		Scan(ctx); err != nil {
		return err
	}
	vanished := []string{}
	for _, row := range rows {
		if _, ok := listed[row.URL]; !ok {
			vanished = append(vanished, row.URL)
		}
	}
	if len(vanished) == 0 {
		return nil
	}
	if _, err := db.NewDelete().
		Model((*storage.Item)(nil)).
		Where("url IN (?)", bun.In(vanished)).
		Exec(ctx); err != nil {
		return err
	}
	return nil
}
