// Package rest provides URL and header helpers shared by the WebDAV request
// layer, copying rclone's lib/rest.
package rest

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// URLJoin joins a base URL and a path, returning a new URL. Unlike
// url.Parse(path), this treats path as a path relative to base even when it
// contains characters url.Parse would otherwise interpret specially, as
// long as the path has already been escaped with URLPathEscape or
// URLPathEscapeAll.
func URLJoin(base *url.URL, path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(rel), nil
}

// URLPathEscape escapes a single path segment (or a path already known to
// be safe apart from spaces) for safe inclusion in a URL path, percent
// encoding spaces but leaving colons untouched. A leading colon is
// disambiguated from a URL scheme separator by prefixing "./".
func URLPathEscape(path string) string {
	escaped := strings.ReplaceAll(path, " ", "%20")
	if strings.HasPrefix(escaped, ":") {
		escaped = "./" + escaped
	}
	return escaped
}

// URLPathEscapeAll escapes every segment of path individually using
// url.PathEscape plus ':', which is more aggressive than URLPathEscape: it
// also encodes ':' and non-ASCII bytes.
func URLPathEscapeAll(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
	}
	return strings.Join(segments, "/")
}

// ParseSizeFromHeaders returns the size of a response as declared by its
// Content-Length or Content-Range header, or -1 if it cannot be determined.
func ParseSizeFromHeaders(header http.Header) int64 {
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	if cr := header.Get("Content-Range"); cr != "" {
		cr = strings.TrimPrefix(cr, "bytes ")
		parts := strings.SplitN(cr, "/", 2)
		if len(parts) == 2 && parts[1] != "*" {
			if n, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return n
			}
		}
		if len(parts) == 2 {
			rangePart := strings.SplitN(parts[0], "-", 2)
			if len(rangePart) == 2 {
				start, errStart := strconv.ParseInt(rangePart[0], 10, 64)
				end, errEnd := strconv.ParseInt(rangePart[1], 10, 64)
				if errStart == nil && errEnd == nil {
					return end - start + 1
				}
			}
		}
	}
	return -1
}
