package ical

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	utcDateTimeLayout   = "20060102T150405Z"
	localDateTimeLayout = "20060102T150405"
)

// normalizeDateTime resolves one raw DATE-TIME value to an absolute
// instant. Resolution order: the UTC-suffixed form, then local time
// in the zone named by tzid, then local time pinned to UTC. A nil
// result means none of the encodings matched.
func normalizeDateTime(value, tzid string) *time.Time {
	if t, err := time.Parse(utcDateTimeLayout, value); err == nil {
		return &t
	}
	if tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			if t, err := time.ParseInLocation(localDateTimeLayout, value, loc); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	if t, err := time.ParseInLocation(localDateTimeLayout, value, time.UTC); err == nil {
		return &t
	}
	return nil
}

// propDateTime applies normalizeDateTime to a parsed property,
// honoring its TZID parameter when present.
func propDateTime(prop ics.IANAProperty) *time.Time {
	return normalizeDateTime(prop.Value, firstParam(prop, "TZID"))
}

func firstParam(prop ics.IANAProperty, name string) string {
	if values, ok := prop.ICalParameters[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}
