package ical

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrUnsupportedComponents is returned when a document does not
	// contain exactly one VTODO or exactly one VEVENT.
	ErrUnsupportedComponents = errors.New("only a single VTODO or a single VEVENT is supported")

	// ErrMultipleCalendars is returned when the input carries more
	// than one parseable top-level VCALENDAR document.
	ErrMultipleCalendars = errors.New("parsing multiple calendar documents is not supported")
)

// MissingFieldError reports a mandatory property that was absent, or
// never resolvable to a value, after scanning a whole component.
type MissingFieldError struct {
	Field string
	URL   *url.URL
	Note  string
}

func (e *MissingFieldError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("missing %s for item %s, %s", e.Field, e.URL, e.Note)
	}
	return fmt.Sprintf("missing %s for item %s", e.Field, e.URL)
}

func missingField(field string, u *url.URL) *MissingFieldError {
	err := &MissingFieldError{Field: field, URL: u}
	if field == "DTSTAMP" {
		err.Note = "but this is required by RFC 5545"
	}
	return err
}
