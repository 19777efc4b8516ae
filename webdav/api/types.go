// Package api holds the wire types exchanged with a WebDAV server: PROPFIND
// multistatus responses, quota responses and the handful of date formats
// servers use for getlastmodified/creationdate.
//
// Grounded on rclone's backend/webdav/api/types.go, extended with
// CreationDate and a boolean IsDir convenience per the richer
// PropFindResponse this core needs.
package api

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Multistatus is the top level response to a PROPFIND request.
type Multistatus struct {
	Responses []Response `xml:"response"`
}

// Response is one <d:response> entry of a Multistatus.
type Response struct {
	Href     string   `xml:"href"`
	Propstat Propstat `xml:"propstat"`
}

// Propstat pairs a property block with its own HTTP status line, per the
// WebDAV spec's per-property status reporting.
type Propstat struct {
	Prop   Prop   `xml:"prop"`
	Status string `xml:"status"`
}

// Prop is the subset of DAV properties this core reads out of a PROPFIND
// response body.
type Prop struct {
	IsCollection *struct{} `xml:"resourcetype>collection"`
	Size         int64     `xml:"getcontentlength"`
	Modified     Time      `xml:"getlastmodified"`
	Created      Time      `xml:"creationdate"`
}

var statusCodeRe = regexp.MustCompile(`^HTTP/[0-9.]+\s+(\d+)`)

// StatusCode extracts the numeric status from a propstat status line, or 0
// if it cannot be parsed.
func (p *Propstat) StatusCode() int {
	m := statusCodeRe.FindStringSubmatch(p.Status)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// StatusOK reports whether the propstat block succeeded.
func (p *Propstat) StatusOK() bool {
	code := p.StatusCode()
	return code == 0 || (code >= 200 && code < 300)
}

// IsDir reports whether the response describes a collection.
func (p *Prop) IsDir() bool { return p.IsCollection != nil }

// PropOK reports whether the response's property block succeeded, for
// call sites that don't care about the per-property status line itself.
func (r *Response) PropOK() bool { return r.Propstat.StatusOK() }

// timeFormats lists every layout a getlastmodified header has been observed
// using in the wild, tried in order.
var timeFormats = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"Mon, 02-Jan-06 15:04:05 MST",
	time.RFC3339,
}

// formatCache memoises, per XML element name (e.g. "getlastmodified"), the
// layout that last successfully parsed a date from that element. A given
// server consistently emits the same format for a given property, so once
// one entry's date has matched a layout, every subsequent entry tries that
// layout first instead of working through the whole timeFormats chain.
var formatCache = gocache.New(gocache.NoExpiration, gocache.NoExpiration)

// Time wraps time.Time with lenient XML (un)marshalling across the several
// date formats different WebDAV server implementations emit.
type Time time.Time

// UnmarshalXML tries the layout last known to work for this element, then
// falls back to every known layout in turn, leaving the zero time if none
// match.
func (t *Time) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Time(time.Time{})
		return nil
	}

	key := start.Name.Local
	if cached, ok := formatCache.Get(key); ok {
		if parsed, err := time.Parse(cached.(string), s); err == nil {
			*t = Time(parsed)
			return nil
		}
	}

	for _, layout := range timeFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Time(parsed)
			formatCache.Set(key, layout, gocache.NoExpiration)
			return nil
		}
	}
	*t = Time(time.Time{})
	return nil
}

// MarshalXML writes the time using RFC1123, the most broadly accepted
// layout.
func (t Time) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(time.Time(t).Format(time.RFC1123), start)
}

// ParseCreationDate parses an RFC3339 creationdate value, the format every
// server observed in practice uses for that property.
func ParseCreationDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Quota is the body of a quota PROPFIND response.
type Quota struct {
	Available string `xml:"quota-available-bytes"`
	Used      string `xml:"quota-used-bytes"`
}

// Error is the body of an error response from a WebDAV server.
type Error struct {
	Exception string `xml:"exception"`
	Message   string `xml:"message"`

	Status     string `xml:"-"`
	StatusCode int    `xml:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	out := e.Status
	if e.Exception != "" {
		out += ": " + e.Exception
	}
	if e.Message != "" {
		out += ": " + e.Message
	}
	return out
}
