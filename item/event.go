package item

import (
	"net/url"
	"time"
)

// Event is one VEVENT entry.
type Event struct {
	URL          *url.URL
	UID          string
	Name         string
	Description  string
	Sync         SyncStatus
	ProdID       string
	Created      *time.Time
	LastModified time.Time
	Start        time.Time
	End          time.Time

	// properties the parser did not recognize, in document order
	CustomProperties []Property
}

// NewEvent creates a fresh local event under the given parent
// collection URL. It has never been synced anywhere.
func NewEvent(name string, start, end time.Time, parent *url.URL) *Event {
	uid := NewUID()
	return &Event{
		URL:          parent.JoinPath(uid + ".ics"),
		UID:          uid,
		Name:         name,
		Sync:         NotSynced(),
		ProdID:       DefaultProdID,
		LastModified: time.Now().UTC(),
		Start:        start.UTC(),
		End:          end.UTC(),
	}
}

// Get the event URL, its identity anchor.
func (e *Event) GetURL() *url.URL {
	return e.URL
}

// Get the event UID.
func (e *Event) GetUID() string {
	return e.UID
}

// Get the event name.
func (e *Event) GetName() string {
	return e.Name
}

// Get the PRODID of the document this event came from.
func (e *Event) GetProdID() string {
	return e.ProdID
}

// Get the last modification instant.
func (e *Event) GetLastModified() time.Time {
	return e.LastModified
}

// Get the synchronization status.
func (e *Event) GetSyncStatus() SyncStatus {
	return e.Sync
}

// Set the synchronization status.
func (e *Event) SetSyncStatus(s SyncStatus) {
	e.Sync = s
}

// Get the preserved unrecognized properties.
func (e *Event) GetCustomProperties() []Property {
	return e.CustomProperties
}

func (*Event) isItem() {}
