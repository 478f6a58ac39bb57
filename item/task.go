package item

import (
	"net/url"
	"time"
)

// Task is one VTODO entry.
type Task struct {
	URL          *url.URL
	UID          string
	Name         string
	Completion   CompletionStatus
	Sync         SyncStatus
	ProdID       string
	Created      *time.Time
	LastModified time.Time

	// properties the parser did not recognize, in document order
	CustomProperties []Property
}

// NewTask creates a fresh local task under the given parent
// collection URL. It has never been synced anywhere.
func NewTask(name string, parent *url.URL) *Task {
	uid := NewUID()
	return &Task{
		URL:          parent.JoinPath(uid + ".ics"),
		UID:          uid,
		Name:         name,
		Completion:   Uncompleted(),
		Sync:         NotSynced(),
		ProdID:       DefaultProdID,
		LastModified: time.Now().UTC(),
	}
}

// SetName renames the task and records the local edit.
func (t *Task) SetName(name string) {
	t.Name = name
	t.markEdited()
}

// SetCompletion replaces the completion state and records the local
// edit.
func (t *Task) SetCompletion(c CompletionStatus) {
	t.Completion = c
	t.markEdited()
}

// markEdited bumps the modification stamp and downgrades a Synced
// status to LocallyModified so the push path knows this copy drifted
// from the remote revision.
func (t *Task) markEdited() {
	t.LastModified = time.Now().UTC()
	if t.Sync.State() == StateSynced {
		t.Sync = LocallyModified(t.Sync.Tag())
	}
}

// Get the task URL, its identity anchor.
func (t *Task) GetURL() *url.URL {
	return t.URL
}

// Get the task UID.
func (t *Task) GetUID() string {
	return t.UID
}

// Get the task name.
func (t *Task) GetName() string {
	return t.Name
}

// Get the PRODID of the document this task came from.
func (t *Task) GetProdID() string {
	return t.ProdID
}

// Get the last modification instant.
func (t *Task) GetLastModified() time.Time {
	return t.LastModified
}

// Get the synchronization status.
func (t *Task) GetSyncStatus() SyncStatus {
	return t.Sync
}

// Set the synchronization status.
func (t *Task) SetSyncStatus(s SyncStatus) {
	t.Sync = s
}

// Get the preserved unrecognized properties.
func (t *Task) GetCustomProperties() []Property {
	return t.CustomProperties
}

func (*Task) isItem() {}
