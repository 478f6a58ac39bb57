package scheduler

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"larder/storage"
	"larder/utils"
)

const remoteTaskMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/remote-task.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>&quot;etag-task-1&quot;</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Remote//EN
BEGIN:VTODO
UID:remote-task@example.com
DTSTAMP:20210321T001600
SUMMARY:Remote task
END:VTODO
END:VCALENDAR
</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

const remoteEventMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/remote-event.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>&quot;etag-event-1&quot;</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Remote//EN
BEGIN:VEVENT
UID:remote-event@example.com
DTSTAMP:20230510T090000Z
DTSTART:20230510T120000Z
DTEND:20230510T130000Z
SUMMARY:Remote event
END:VEVENT
END:VCALENDAR
</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

const ctagMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:CS="http://calendarserver.org/ns/">
  <D:response>
    <D:href>/</D:href>
    <D:propstat>
      <D:prop><CS:getctag>ctag-1</CS:getctag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

// fakeDavServer answers the request shapes Refresh produces. Requests
// it does not recognize get a 404, which conveniently also fails the
// discovery chain so the endpoint itself becomes the collection.
type fakeDavServer struct {
	mu       sync.Mutex
	reports  []string
	syncBody string
}

func (f *fakeDavServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)

		respond := func(status int, payload string) {
			w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			w.WriteHeader(status)
			io.WriteString(w, payload)
		}

		switch {
		case r.Method == "PROPFIND" && strings.Contains(body, "getctag"):
			respond(http.StatusMultiStatus, ctagMultistatus)
		case r.Method == "REPORT" && strings.Contains(body, "sync-collection"):
			f.recordReport("sync-collection")
			if f.syncBody == "" {
				http.Error(w, "not implemented", http.StatusNotImplemented)
				return
			}
			respond(http.StatusMultiStatus, f.syncBody)
		case r.Method == "REPORT" && strings.Contains(body, `comp-filter name="VTODO"`):
			f.recordReport("VTODO")
			respond(http.StatusMultiStatus, remoteTaskMultistatus)
		case r.Method == "REPORT" && strings.Contains(body, `comp-filter name="VEVENT"`):
			f.recordReport("VEVENT")
			respond(http.StatusMultiStatus, remoteEventMultistatus)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

func (f *fakeDavServer) recordReport(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, kind)
}

func (f *fakeDavServer) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func newTestAppState(t *testing.T, sourceURL string) *utils.AppState {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	bundb := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bundb.Close() })
	require.NoError(t, storage.CreateSchema(bundb))

	return &utils.AppState{
		BunDB:   bundb,
		Sources: []utils.Source{{Name: "test", URL: sourceURL}},
	}
}

func refreshWindow() (time.Time, time.Time) {
	return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestRefreshFullListing(t *testing.T) {
	fake := &fakeDavServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	as := newTestAppState(t, server.URL)

	from, to := refreshWindow()
	Refresh(context.Background(), as, from, to)

	// the collection row carries the ctag, with the sync token cleared
	// by the full-listing fallback
	var cal storage.Calendar
	require.NoError(t, as.BunDB.NewSelect().Model(&cal).Where("url = ?", server.URL).Scan(context.Background()))
	assert.Equal(t, "ctag-1", cal.CTag)
	assert.Equal(t, "test", cal.Source)
	assert.Empty(t, cal.SyncToken)

	rows := []storage.Item{}
	require.NoError(t, as.BunDB.NewSelect().Model(&rows).Order("uid").Scan(context.Background()))
	require.Len(t, rows, 2)

	event, task := rows[0], rows[1]
	assert.Equal(t, storage.KindEvent, event.Kind)
	assert.Equal(t, "Remote event", event.Summary)
	assert.Equal(t, `"etag-event-1"`, event.VersionTag)

	assert.Equal(t, storage.KindTask, task.Kind)
	assert.Equal(t, server.URL+"/remote-task.ics", task.URL)
	assert.Equal(t, "Remote task", task.Summary)
	assert.Equal(t, storage.SyncStateSynced, task.SyncState)
	assert.Equal(t, `"etag-task-1"`, task.VersionTag)
	assert.Contains(t, task.RawIcal, "SUMMARY:Remote task")
}

func TestRefreshSkipsUnchangedCollection(t *testing.T) {
	fake := &fakeDavServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	as := newTestAppState(t, server.URL)

	// the stored ctag matches what the server reports
	cal := storage.Calendar{URL: server.URL, Name: "test", Source: "test", CTag: "ctag-1"}
	require.NoError(t, cal.Upsert(context.Background(), as.BunDB))

	from, to := refreshWindow()
	Refresh(context.Background(), as, from, to)

	assert.Zero(t, fake.reportCount(), "an unchanged collection should not be listed")

	count, err := as.BunDB.NewSelect().Model((*storage.Item)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRefreshKeepsPendingLocalCopy(t *testing.T) {
	fake := &fakeDavServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	as := newTestAppState(t, server.URL)

	pending := storage.Item{
		URL:         server.URL + "/remote-task.ics",
		CalendarURL: server.URL,
		UID:         "remote-task@example.com",
		Kind:        storage.KindTask,
		Summary:     "Local edit",
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateLocallyModified,
		VersionTag:  `"etag-task-0"`,
	}
	require.NoError(t, pending.Upsert(context.Background(), as.BunDB))

	from, to := refreshWindow()
	Refresh(context.Background(), as, from, to)

	var reloaded storage.Item
	require.NoError(t, as.BunDB.NewSelect().Model(&reloaded).Where("url = ?", pending.URL).Scan(context.Background()))
	assert.Equal(t, "Local edit", reloaded.Summary, "pending local changes must survive a refresh")
	assert.Equal(t, storage.SyncStateLocallyModified, reloaded.SyncState)
	assert.Equal(t, `"etag-task-0"`, reloaded.VersionTag)
}

func TestRefreshPrunesVanishedTasks(t *testing.T) {
	fake := &fakeDavServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	as := newTestAppState(t, server.URL)

	stale := storage.Item{
		URL:         server.URL + "/stale.ics",
		CalendarURL: server.URL,
		UID:         "stale@example.com",
		Kind:        storage.KindTask,
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateSynced,
	}
	staleEvent := storage.Item{
		URL:         server.URL + "/stale-event.ics",
		CalendarURL: server.URL,
		UID:         "stale-event@example.com",
		Kind:        storage.KindEvent,
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateSynced,
	}
	unsent := storage.Item{
		URL:         server.URL + "/unsent.ics",
		CalendarURL: server.URL,
		UID:         "unsent@example.com",
		Kind:        storage.KindTask,
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateNotSynced,
	}
	for _, row := range []storage.Item{stale, staleEvent, unsent} {
		require.NoError(t, row.Upsert(context.Background(), as.BunDB))
	}

	from, to := refreshWindow()
	Refresh(context.Background(), as, from, to)

	// the synced task the listing no longer mentions is gone
	exists, err := as.BunDB.NewSelect().Model((*storage.Item)(nil)).Where("url = ?", stale.URL).Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists, "vanished synced tasks should be pruned")

	// events are outside the pruning rule, the listing window hides them
	exists, err = as.BunDB.NewSelect().Model((*storage.Item)(nil)).Where("url = ?", staleEvent.URL).Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists, "events are never pruned by a listing")

	// never-pushed local items stay no matter what the listing says
	exists, err = as.BunDB.NewSelect().Model((*storage.Item)(nil)).Where("url = ?", unsent.URL).Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists, "pending local items should survive pruning")
}

func TestRefreshSyncCollection(t *testing.T) {
	fake := &fakeDavServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	as := newTestAppState(t, server.URL)

	fake.syncBody = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/remote-task.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>&quot;etag-task-2&quot;</D:getetag>
        <C:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VTODO
UID:remote-task@example.com
DTSTAMP:20210321T001600
SUMMARY:Renamed remotely
END:VTODO
END:VCALENDAR
</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/deleted-remotely.ics</D:href>
    <D:status>HTTP/1.1 404 Not Found</D:status>
  </D:response>
  <D:sync-token>tok-2</D:sync-token>
</D:multistatus>`

	// both urls are known and synced before the refresh
	known := storage.Item{
		URL:         server.URL + "/remote-task.ics",
		CalendarURL: server.URL,
		UID:         "remote-task@example.com",
		Kind:        storage.KindTask,
		Summary:     "Old name",
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateSynced,
		VersionTag:  `"etag-task-1"`,
	}
	doomed := storage.Item{
		URL:         server.URL + "/deleted-remotely.ics",
		CalendarURL: server.URL,
		UID:         "doomed@example.com",
		Kind:        storage.KindTask,
		RawIcal:     "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		SyncState:   storage.SyncStateSynced,
	}
	require.NoError(t, known.Upsert(context.Background(), as.BunDB))
	require.NoError(t, doomed.Upsert(context.Background(), as.BunDB))

	from, to := refreshWindow()
	Refresh(context.Background(), as, from, to)

	var cal storage.Calendar
	require.NoError(t, as.BunDB.NewSelect().Model(&cal).Where("url = ?", server.URL).Scan(context.Background()))
	assert.Equal(t, "tok-2", cal.SyncToken)

	var reloaded storage.Item
	require.NoError(t, as.BunDB.NewSelect().Model(&reloaded).Where("url = ?", known.URL).Scan(context.Background()))
	assert.Equal(t, "Renamed remotely", reloaded.Summary)
	assert.Equal(t, `"etag-task-2"`, reloaded.VersionTag)

	exists, err := as.BunDB.NewSelect().Model((*storage.Item)(nil)).Where("url = ?", doomed.URL).Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists, "a sync-collection delete should remove the synced row")
}
