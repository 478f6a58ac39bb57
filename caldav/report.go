package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const utcTimeLayout = "20060102T150405Z"

// Object is one calendar resource as fetched from the server: its
// absolute URL, the entity tag the server reported, and the raw
// iCalendar text exactly as stored.
type Object struct {
	URL  *url.URL
	ETag string
	Data string
}

// SyncChanges is the outcome of one sync-collection round trip:
// objects changed since the previous token, URLs that vanished, and
// the token to present next time.
type SyncChanges struct {
	Changed   []Object
	Deleted   []*url.URL
	SyncToken string
}

type multistatus struct {
	XMLName   xml.Name       `xml:"DAV: multistatus"`
	Responses []responseElem `xml:"response"`
	SyncToken string         `xml:"sync-token"`
}

type responseElem struct {
	Href      string     `xml:"href"`
	Status    string     `xml:"status"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string   `xml:"status"`
	Prop   propElem `xml:"prop"`
}

type propElem struct {
	GetETag      string `xml:"getetag"`
	GetCTag      string `xml:"http://calendarserver.org/ns/ getctag"`
	CalendarData string `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

const calendarQueryBody = `<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      %s
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`

const syncCollectionBody = `<?xml version="1.0" encoding="utf-8" ?>
<D:sync-collection xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:sync-token>%s</D:sync-token>
  <D:sync-level>1</D:sync-level>
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
</D:sync-collection>`

const ctagPropfindBody = `<?xml version="1.0" encoding="utf-8" ?>
<D:propfind xmlns:D="DAV:" xmlns:CS="http://calendarserver.org/ns/">
  <D:prop>
    <CS:getctag/>
  </D:prop>
</D:propfind>`

var xmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// ListObjects runs a calendar-query REPORT against the collection and
// returns every matching object. comp selects the component kind
// (VEVENT or VTODO); a non-zero start/end window narrows VEVENT
// listings server-side.
func (c *Client) ListObjects(ctx context.Context, collection *url.URL, comp string, start, end time.Time) ([]Object, error) {
	var filter string
	if !start.IsZero() && !end.IsZero() {
		filter = fmt.Sprintf(`<C:comp-filter name=%q><C:time-range start=%q end=%q/></C:comp-filter>`,
			comp, start.UTC().Format(utcTimeLayout), end.UTC().Format(utcTimeLayout))
	} else {
		filter = fmt.Sprintf(`<C:comp-filter name=%q/>`, comp)
	}
	ms, err := c.report(ctx, collection, "1", fmt.Sprintf(calendarQueryBody, filter))
	if err != nil {
		return nil, fmt.Errorf("(*Client).ListObjects: %w", err)
	}
	return c.collectObjects(ms), nil
}

// SyncCollection asks the server for everything that changed since
// syncToken (RFC 6578). An empty token requests the full collection.
func (c *Client) SyncCollection(ctx context.Context, collection *url.URL, syncToken string) (*SyncChanges, error) {
	body := fmt.Sprintf(syncCollectionBody, xmlTextEscaper.Replace(syncToken))
	ms, err := c.report(ctx, collection, "1", body)
	if err != nil {
		return nil, fmt.Errorf("(*Client).SyncCollection: %w", err)
	}

	changes := &SyncChanges{SyncToken: ms.SyncToken}
	for _, r := range ms.Responses {
		u, err := c.AbsoluteURL(r.Href)
		if err != nil {
			slog.Warn("skipping multistatus entry with unparseable href", "href", r.Href, "error", err)
			continue
		}
		if strings.Contains(r.Status, "404") {
			changes.Deleted = append(changes.Deleted, u)
			continue
		}
		if obj, ok := objectFromPropstats(u, r.Propstats); ok {
			changes.Changed = append(changes.Changed, obj)
		}
	}
	return changes, nil
}

// GetCTag fetches the collection's change tag. Servers bump it on any
// change inside the collection, which makes it a cheap "anything
// new?" probe before a full listing.
func (c *Client) GetCTag(ctx context.Context, collection *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", collection.String(), strings.NewReader(ctagPropfindBody))
	if err != nil {
		return "", fmt.Errorf("(*Client).GetCTag: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("(*Client).GetCTag: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		return "", fmt.Errorf("(*Client).GetCTag: unexpected status %s for %s", resp.Status, collection)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return "", fmt.Errorf("(*Client).GetCTag: decode multistatus: %w", err)
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if strings.Contains(ps.Status, "200") && ps.Prop.GetCTag != "" {
				return ps.Prop.GetCTag, nil
			}
		}
	}
	return "", nil
}

// GetObject fetches one resource's raw text and current etag.
func (c *Client) GetObject(ctx context.Context, target *url.URL) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("(*Client).GetObject: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("(*Client).GetObject: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("(*Client).GetObject: unexpected status %s for %s", resp.Status, target)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("(*Client).GetObject: read body: %w", err)
	}
	return &Object{
		URL:  target,
		ETag: resp.Header.Get("Etag"),
		Data: string(data),
	}, nil
}

// PutObject uploads one serialized item and returns the etag the
// server assigned, which may be empty when the server withholds it.
// A non-empty ifMatch makes the write conditional on that revision
// still being current; ifNoneMatch guards a first upload against
// overwriting a resource that appeared remotely in the meantime.
func (c *Client) PutObject(ctx context.Context, target *url.URL, data string, ifMatch string, ifNoneMatch bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), strings.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("(*Client).PutObject: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	if ifNoneMatch {
		req.Header.Set("If-None-Match", "*")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("(*Client).PutObject: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return resp.Header.Get("Etag"), nil
	case http.StatusPreconditionFailed:
		return "", ErrPreconditionFailed
	default:
		return "", fmt.Errorf("(*Client).PutObject: unexpected status %s for %s", resp.Status, target)
	}
}

// DeleteObject removes one resource. A non-empty ifMatch turns the
// delete conditional; a resource already gone counts as success.
func (c *Client) DeleteObject(ctx context.Context, target *url.URL, ifMatch string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return fmt.Errorf("(*Client).DeleteObject: %w", err)
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("(*Client).DeleteObject: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	default:
		return fmt.Errorf("(*Client).DeleteObject: unexpected status %s for %s", resp.Status, target)
	}
}

func (c *Client) report(ctx context.Context, target *url.URL, depth, body string) (*multistatus, error) {
	req, err := http.NewRequestWithContext(ctx, "REPORT", target.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", depth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, target)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("decode multistatus: %w", err)
	}
	return &ms, nil
}

func (c *Client) collectObjects(ms *multistatus) []Object {
	var out []Object
	for _, r := range ms.Responses {
		u, err := c.AbsoluteURL(r.Href)
		if err != nil {
			slog.Warn("skipping multistatus entry with unparseable href", "href", r.Href, "error", err)
			continue
		}
		if obj, ok := objectFromPropstats(u, r.Propstats); ok {
			out = append(out, obj)
		}
	}
	return out
}

func objectFromPropstats(u *url.URL, propstats []propstat) (Object, bool) {
	for _, ps := range propstats {
		if !strings.Contains(ps.Status, "200") || ps.Prop.CalendarData == "" {
			continue
		}
		return Object{URL: u, ETag: ps.Prop.GetETag, Data: ps.Prop.CalendarData}, true
	}
	return Object{}, false
}
