// Package request builds and parses the individual WebDAV requests this
// core issues: PROPFIND listings and quota probes, OPTIONS verb discovery,
// MKCOL, DELETE and MOVE. Grounded on Requests.cpp.
package request

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/url"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ncw/webdavfs/lib/rest"
	"github.com/ncw/webdavfs/vfs"
	"github.com/ncw/webdavfs/webdav/api"
	"github.com/ncw/webdavfs/webdav/transport"
)

// decodeXML unmarshals raw into v through a charset-aware decoder: some
// servers declare (or default to) a non-UTF-8 charset in their PROPFIND
// response's Content-Type or XML declaration, which encoding/xml alone
// can't transcode.
func decodeXML(raw []byte, v interface{}) error {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}

// Mask is a bitmask of HTTP verbs, parsed out of an OPTIONS response's
// Allow header. Grounded on Internal.h's HTTPRequests::Mask.
type Mask uint32

// The verb bits this core distinguishes.
const (
	MaskGet Mask = 1 << iota
	MaskHead
	MaskPost
	MaskPut
	MaskDelete
	MaskConnect
	MaskOptions
	MaskTrace
	MaskCopy
	MaskLock
	MaskUnlock
	MaskMkcol
	MaskMove
	MaskPropfind
	MaskProppatch
)

// MinimalRequiredSet is the lenient verb set NewHost checks for after an
// OPTIONS probe. Some servers (observed on QNAP NAS devices) misreport
// their Allow header, so a server missing any of these verbs is only
// logged, never refused.
const MinimalRequiredSet = MaskGet | MaskPropfind | MaskProppatch

var verbNames = map[string]Mask{
	"GET": MaskGet, "HEAD": MaskHead, "POST": MaskPost, "PUT": MaskPut,
	"DELETE": MaskDelete, "CONNECT": MaskConnect, "OPTIONS": MaskOptions,
	"TRACE": MaskTrace, "COPY": MaskCopy, "LOCK": MaskLock, "UNLOCK": MaskUnlock,
	"MKCOL": MaskMkcol, "MOVE": MaskMove, "PROPFIND": MaskPropfind,
	"PROPPATCH": MaskProppatch,
}

// ParseSupportedRequests parses an Allow header value into a Mask.
func ParseSupportedRequests(allow string) Mask {
	var mask Mask
	for _, v := range strings.Split(allow, ",") {
		v = strings.ToUpper(strings.TrimSpace(v))
		mask |= verbNames[v]
	}
	return mask
}

// ServerOptions issues OPTIONS against baseURL and returns the verb mask it
// advertises. Grounded on RequestServerOptions.
func ServerOptions(ctx context.Context, conn *transport.Connection, baseURL string) (Mask, error) {
	conn.SetCustomRequest("OPTIONS")
	conn.SetURL(baseURL)
	status, err := conn.PerformBlockingRequest(ctx)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, vfs.NewFromStatus(status, nil)
	}
	return ParseSupportedRequests(conn.ResponseHeader().Get("Allow")), nil
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>` +
	`<a:propfind xmlns:a="DAV:"><a:prop>` +
	`<a:resourcetype/><a:getcontentlength/><a:getlastmodified/><a:creationdate/>` +
	`</a:prop></a:propfind>`

// DAVListing issues a depth-1 PROPFIND against baseURL+path (which must end
// in "/") and returns the pruned set of direct children. Grounded on
// RequestDAVListing.
func DAVListing(ctx context.Context, conn *transport.Connection, baseURL *url.URL, reqPath string) ([]api.Response, error) {
	if !strings.HasSuffix(reqPath, "/") {
		reqPath += "/"
	}
	target, err := rest.URLJoin(baseURL, rest.URLPathEscapeAll(strings.TrimPrefix(reqPath, "/")))
	if err != nil {
		return nil, err
	}

	conn.SetCustomRequest("PROPFIND")
	conn.SetURL(target.String())
	conn.SetHeader("Depth", "1")
	conn.SetHeader("translate", "f")
	conn.SetHeader("Content-Type", `application/xml; charset="utf-8"`)
	conn.SetBody([]byte(propfindBody))

	status, err := conn.PerformBlockingRequest(ctx)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, vfs.NewFromStatus(status, nil)
	}

	var ms api.Multistatus
	body := conn.ResponseBody()
	raw := make([]byte, body.Len())
	body.Read(raw)
	if err := decodeXML(raw, &ms); err != nil {
		return nil, err
	}

	return PruneFilepaths(ms.Responses, baseURL.Path, reqPath), nil
}

// PruneFilepaths drops every response whose href doesn't start with
// basePrefix (the server's own root path plus the requested directory),
// strips that prefix from each surviving href, and renames the
// self-referencing entry (the requested directory listing itself) to "..".
//
// Grounded verbatim on Requests.cpp's PruneFilepaths, including the
// deliberate omission of any "does this server even use a path prefix"
// heuristic: the base path is always pruned.
func PruneFilepaths(responses []api.Response, serverBasePath, reqPath string) []api.Response {
	basePrefix := strings.TrimSuffix(serverBasePath, "/") + reqPath
	if !strings.HasPrefix(basePrefix, "/") {
		basePrefix = "/" + basePrefix
	}

	out := make([]api.Response, 0, len(responses))
	for _, r := range responses {
		href, err := url.PathUnescape(r.Href)
		if err != nil {
			href = r.Href
		}
		if !strings.HasPrefix(href, basePrefix) {
			continue
		}
		remainder := strings.TrimPrefix(href, basePrefix)
		if remainder == "" {
			remainder = ".."
		} else if strings.HasSuffix(remainder, "/") {
			if !r.Propstat.Prop.IsDir() {
				continue
			}
			remainder = strings.TrimSuffix(remainder, "/")
		}
		r.Href = remainder
		out = append(out, r)
	}
	return out
}

// SpaceQuota issues a depth-0 PROPFIND against baseURL and returns the
// available/used byte counts it reports, or -1 for either that the server
// didn't include. Grounded on RequestSpaceQuota.
func SpaceQuota(ctx context.Context, conn *transport.Connection, baseURL string) (available, used int64, err error) {
	conn.SetCustomRequest("PROPFIND")
	conn.SetURL(baseURL)
	conn.SetHeader("Depth", "0")
	conn.SetHeader("Content-Type", `application/xml; charset="utf-8"`)
	conn.SetBody([]byte(`<?xml version="1.0" encoding="utf-8"?>` +
		`<a:propfind xmlns:a="DAV:"><a:prop>` +
		`<a:quota-available-bytes/><a:quota-used-bytes/>` +
		`</a:prop></a:propfind>`))

	status, perr := conn.PerformBlockingRequest(ctx)
	if perr != nil {
		return -1, -1, perr
	}
	if status >= 300 {
		return -1, -1, vfs.NewFromStatus(status, nil)
	}

	var ms api.Multistatus
	body := conn.ResponseBody()
	raw := make([]byte, body.Len())
	body.Read(raw)
	if err := decodeXML(raw, &ms); err != nil {
		return -1, -1, err
	}

	type quotaDoc struct {
		Responses []struct {
			Propstat struct {
				Prop api.Quota `xml:"prop"`
			} `xml:"propstat"`
		} `xml:"response"`
	}
	var qd quotaDoc
	if err := decodeXML(raw, &qd); err != nil || len(qd.Responses) == 0 {
		return -1, -1, nil
	}
	available = parseQuotaInt(qd.Responses[0].Propstat.Prop.Available)
	used = parseQuotaInt(qd.Responses[0].Propstat.Prop.Used)
	return available, used, nil
}

func parseQuotaInt(s string) int64 {
	if s == "" {
		return -1
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// MKCOL issues MKCOL against target, appending a trailing "/" if it is
// missing. Grounded on RequestMKCOL.
func MKCOL(ctx context.Context, conn *transport.Connection, target string) error {
	if !strings.HasSuffix(target, "/") {
		target += "/"
	}
	conn.SetCustomRequest("MKCOL")
	conn.SetURL(target)
	status, err := conn.PerformBlockingRequest(ctx)
	if err != nil {
		return err
	}
	if status >= 300 {
		return vfs.NewFromStatus(status, nil)
	}
	return nil
}

// Delete issues DELETE against target. Grounded on RequestDelete, including
// its local refusal to ever delete the filesystem root without making a
// network call.
func Delete(ctx context.Context, conn *transport.Connection, target, reqPath string) error {
	if reqPath == "/" {
		return vfs.New(vfs.KindPermission)
	}
	conn.SetCustomRequest("DELETE")
	conn.SetURL(target)
	status, err := conn.PerformBlockingRequest(ctx)
	if err != nil {
		return err
	}
	if status >= 300 {
		return vfs.NewFromStatus(status, nil)
	}
	return nil
}

// Move issues MOVE from src to dst, setting the Destination header to dst's
// full URL. Grounded on RequestMove.
func Move(ctx context.Context, conn *transport.Connection, src, dst string, overwrite bool) error {
	conn.SetCustomRequest("MOVE")
	conn.SetURL(src)
	conn.SetHeader("Destination", dst)
	if overwrite {
		conn.SetHeader("Overwrite", "T")
	} else {
		conn.SetHeader("Overwrite", "F")
	}
	status, err := conn.PerformBlockingRequest(ctx)
	if err != nil {
		return err
	}
	if status >= 300 {
		return vfs.NewFromStatus(status, nil)
	}
	return nil
}

// JoinPath joins base's path with an additional, already-unescaped segment
// via path.Join, building a server-relative path that is not yet
// URL-escaped. Nothing in this module calls it.
func JoinPath(base, seg string) string {
	return path.Join(base, seg)
}
