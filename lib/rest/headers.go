package rest

import "net/http"

// SetHeaders copies extra into header, overwriting any existing values for
// the same keys. Used to apply the per-request ExtraHeaders bag before
// issuing a request.
func SetHeaders(header http.Header, extra map[string]string) {
	for k, v := range extra {
		header.Set(k, v)
	}
}
