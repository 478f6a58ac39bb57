package storage_test

import (
	"context"
	"testing"

	"larder/storage"
)

func TestCalendarUpsert(t *testing.T) {
	bundb := initTestDB(t)

	calendarModel := storage.Calendar{
		URL:    "https://dav.example.com/calendars/alice/tasks/",
		Name:   "Tasks",
		Source: "example",
	}
	if err := calendarModel.Upsert(context.Background(), bundb); err != nil {
		t.Error(err)
	}

	// case: a refresh rewrites the sync markers in place
	calendarModel.CTag = "ctag-2"
	calendarModel.SyncToken = "https://dav.example.com/sync/42"
	if err := calendarModel.Upsert(context.Background(), bundb); err != nil {
		t.Error(err)
	}

	count, err := bundb.NewSelect().
		Model((*storage.Calendar)(nil)).
		Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("upsert should not add rows", count)
	}

	var reloaded storage.Calendar
	if err := bundb.NewSelect().
		Model(&reloaded).
		Where("url = ?", calendarModel.URL).
		Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reloaded.CTag != "ctag-2" || reloaded.SyncToken != "https://dav.example.com/sync/42" {
		t.Error("sync markers not updated", reloaded)
	}
	if reloaded.Name != "Tasks" || reloaded.Source != "example" {
		t.Error("columns drifted", reloaded)
	}
}

func TestCalendarUpsertValidation(t *testing.T) {
	bundb := initTestDB(t)

	// case: blank url
	if err := (&storage.Calendar{Source: "example"}).Upsert(context.Background(), bundb); err == nil {
		t.Error("blank url should be rejected")
	}

	// case: blank source
	if err := (&storage.Calendar{URL: "https://dav.example.com/"}).Upsert(context.Background(), bundb); err == nil {
		t.Error("blank source should be rejected")
	}

	// case: nil db
	if err := (&storage.Calendar{URL: "https://dav.example.com/", Source: "example"}).Upsert(context.Background(), nil); err == nil {
		t.Error("nil db should be rejected")
	}
}
