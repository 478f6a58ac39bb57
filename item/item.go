package item

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultProdID identifies documents generated by this module rather
// than fetched from a remote source.
const DefaultProdID = "-//larder//NONSGML larder//EN"

// Item is a single calendar entry: either an *Event or a *Task. The
// set is closed; consumers branch with a type switch over the two
// concrete types.
type Item interface {
	GetURL() *url.URL
	GetUID() string
	GetName() string
	GetProdID() string
	GetLastModified() time.Time
	GetSyncStatus() SyncStatus
	SetSyncStatus(SyncStatus)
	GetCustomProperties() []Property

	isItem()
}

// NewUID returns a fresh hyphenated UUIDv4 for locally created items.
// Remote items keep whatever UID string their source assigned.
func NewUID() string {
	return uuid.NewString()
}

// Property is one raw iCalendar content line the parser did not
// recognize, kept verbatim so the original document can be
// reconstructed without loss.
type Property struct {
	Name   string
	Params map[string][]string
	Value  string
}

// Clone returns a copy sharing no memory with p.
func (p Property) Clone() Property {
	out := Property{Name: p.Name, Value: p.Value}
	if p.Params != nil {
		out.Params = make(map[string][]string, len(p.Params))
		for k, v := range p.Params {
			out.Params[k] = append([]string(nil), v...)
		}
	}
	return out
}
