package ical

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"larder/item"
)

const foldWidth = 75

// Serialize renders an item back into a single-component VCALENDAR
// document: recognized fields first, then every preserved property
// verbatim, in the order they were parsed. Output uses CRLF line
// endings folded at 75 octets.
func Serialize(it item.Item) string {
	var sb strings.Builder
	w := &foldingWriter{b: &sb}
	w.line("BEGIN:VCALENDAR")
	w.line("VERSION:2.0")
	w.line("PRODID:" + it.GetProdID())

	switch v := it.(type) {
	case *item.Task:
		w.line("BEGIN:VTODO")
		w.line("UID:" + v.UID)
		w.line("SUMMARY:" + v.Name)
		w.line("DTSTAMP:" + formatDateTimeUTC(v.LastModified))
		w.line("LAST-MODIFIED:" + formatDateTimeUTC(v.LastModified))
		if v.Created != nil {
			w.line("CREATED:" + formatDateTimeUTC(*v.Created))
		}
		if v.Completion.IsCompleted() {
			w.line("STATUS:COMPLETED")
			if at := v.Completion.CompletedAt(); at != nil {
				w.line("COMPLETED:" + formatDateTimeUTC(*at))
			}
		} else {
			w.line("STATUS:NEEDS-ACTION")
		}
		writeCustomProperties(w, v.CustomProperties)
		w.line("END:VTODO")
	case *item.Event:
		w.line("BEGIN:VEVENT")
		w.line("UID:" + v.UID)
		w.line("SUMMARY:" + v.Name)
		if v.Description != "" {
			w.line("DESCRIPTION:" + v.Description)
		}
		w.line("DTSTAMP:" + formatDateTimeUTC(v.LastModified))
		w.line("LAST-MODIFIED:" + formatDateTimeUTC(v.LastModified))
		if v.Created != nil {
			w.line("CREATED:" + formatDateTimeUTC(*v.Created))
		}
		w.line("DTSTART:" + formatDateTimeUTC(v.Start))
		w.line("DTEND:" + formatDateTimeUTC(v.End))
		writeCustomProperties(w, v.CustomProperties)
		w.line("END:VEVENT")
	}

	w.line("END:VCALENDAR")
	return sb.String()
}

func formatDateTimeUTC(t time.Time) string {
	return t.UTC().Format(utcDateTimeLayout)
}

// writeCustomProperties re-emits preserved lines. Parameter order
// inside a property carries no meaning in RFC 5545, so keys come out
// sorted for a stable rendering; property order stays as parsed.
func writeCustomProperties(w *foldingWriter, props []item.Property) {
	for _, p := range props {
		var sb strings.Builder
		sb.WriteString(p.Name)
		keys := make([]string, 0, len(p.Params))
		for k := range p.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(";")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(strings.Join(p.Params[k], ","))
		}
		sb.WriteString(":")
		sb.WriteString(p.Value)
		w.line(sb.String())
	}
}

// foldingWriter emits RFC 5545 content lines, folding anything past
// 75 octets onto space-prefixed continuation lines without splitting
// a UTF-8 sequence.
type foldingWriter struct {
	b *strings.Builder
}

func (w *foldingWriter) line(s string) {
	for len(s) > foldWidth {
		cut := foldWidth
		for cut > 1 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		w.b.WriteString(s[:cut])
		w.b.WriteString("\r\n")
		s = " " + s[cut:]
	}
	w.b.WriteString(s)
	w.b.WriteString("\r\n")
}
