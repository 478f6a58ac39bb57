// Package caldav talks to a CalDAV server (RFC 4791). Collection
// discovery goes through go-webdav; object listing and writes use
// plain REPORT/GET/PUT/DELETE requests so the calendar text travels
// byte for byte, without a re-encode on the way in or out.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/emersion/go-webdav/caldav"
)

// ErrPreconditionFailed is returned when a conditional write or
// delete loses the race against a newer remote revision.
var ErrPreconditionFailed = errors.New("remote copy changed since last sync")

const userAgent = "larder/1.0"

// basicAuthTransport adds Basic Auth and a User-Agent to every
// request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}
	req.Header.Set("User-Agent", userAgent)
	return t.transport.RoundTrip(req)
}

// Client is one authenticated CalDAV endpoint.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	dav      *caldav.Client
}

// NewClient builds a client for the endpoint. Credentials may be
// empty for servers that accept anonymous reads.
func NewClient(endpoint, username, password string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav.NewClient: parse endpoint: %w", err)
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &basicAuthTransport{
			username:  username,
			password:  password,
			transport: http.DefaultTransport,
		},
	}
	davClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav.NewClient: %w", err)
	}
	return &Client{
		endpoint: u,
		http:     httpClient,
		dav:      davClient,
	}, nil
}

// Endpoint returns the URL the client was configured with.
func (c *Client) Endpoint() *url.URL {
	return c.endpoint
}

// AbsoluteURL resolves a server-returned path or URL against the
// configured endpoint.
func (c *Client) AbsoluteURL(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("(*Client).AbsoluteURL: %w", err)
	}
	return c.endpoint.ResolveReference(u), nil
}

// Collection describes one remote calendar collection.
type Collection struct {
	URL                 *url.URL
	Name                string
	SupportedComponents []string
}

// FindCalendars walks the discovery chain (current-user-principal,
// calendar-home-set, then the calendars under it) and returns every
// collection the server advertises.
func (c *Client) FindCalendars(ctx context.Context) ([]Collection, error) {
	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("(*Client).FindCalendars: find principal: %w", err)
	}
	homeSet, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("(*Client).FindCalendars: find calendar home set: %w", err)
	}
	calendars, err := c.dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("(*Client).FindCalendars: %w", err)
	}

	collections := make([]Collection, 0, len(calendars))
	for _, cal := range calendars {
		u, err := c.AbsoluteURL(cal.Path)
		if err != nil {
			slog.Warn("skipping calendar with unparseable path", "path", cal.Path, "error", err)
			continue
		}
		collections = append(collections, Collection{
			URL:                 u,
			Name:                cal.Name,
			SupportedComponents: cal.SupportedComponentSet,
		})
	}
	return collections, nil
}
