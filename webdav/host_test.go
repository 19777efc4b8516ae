package webdav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncw/webdavfs/vfs"
)

const propfindRootBody = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
  <d:response>
    <d:href>/sub/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
  <d:response>
    <d:href>/file.txt</d:href>
    <d:propstat><d:prop><d:getcontentlength>11</d:getcontentlength></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
</d:multistatus>`

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "OPTIONS":
			w.Header().Set("Allow", "GET, HEAD, PROPFIND, PROPPATCH, PUT, DELETE, MKCOL, MOVE")
			w.WriteHeader(http.StatusOK)
		case "PROPFIND":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(propfindRootBody))
		default:
			t.Logf("unhandled method %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return httptest.NewServer(mux)
}

func newTestHost(t *testing.T) *Host {
	srv := newTestServer(t)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	cfg := NewHostConfiguration(u, "", "", "", false, 0)
	h, err := NewHost(context.Background(), cfg)
	require.NoError(t, err)
	return h
}

func TestHostFetchDirectoryListing(t *testing.T) {
	h := newTestHost(t)

	listing, err := h.FetchDirectoryListing("/", 0, nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range listing {
		names[e.Name] = true
	}
	assert.True(t, names["sub"])
	assert.True(t, names["file.txt"])
	assert.False(t, names[".."], "root listing never gets a ..")
}

func TestHostStatUsesCacheAfterFetch(t *testing.T) {
	h := newTestHost(t)
	_, err := h.FetchDirectoryListing("/", 0, nil)
	require.NoError(t, err)

	st, err := h.Stat("/file.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), st.Size)
	assert.False(t, st.IsDir())
}

func TestHostStatNonExistent(t *testing.T) {
	h := newTestHost(t)
	_, err := h.FetchDirectoryListing("/", 0, nil)
	require.NoError(t, err)

	_, err = h.Stat("/missing.txt", nil)
	assert.True(t, vfs.Is(err, vfs.KindNotFound))
}

func TestHostFetchDirectoryListingPreservesSelfEntrySize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "OPTIONS":
			w.Header().Set("Allow", "GET, HEAD, PROPFIND, PROPPATCH, PUT, DELETE, MKCOL, MOVE")
			w.WriteHeader(http.StatusOK)
		case "PROPFIND":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/sub/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype><d:getcontentlength>4096</d:getcontentlength></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
  <d:response>
    <d:href>/sub/file.txt</d:href>
    <d:propstat><d:prop><d:getcontentlength>11</d:getcontentlength></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
</d:multistatus>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	cfg := NewHostConfiguration(u, "", "", "", false, 0)
	h, err := NewHost(context.Background(), cfg)
	require.NoError(t, err)

	listing, err := h.FetchDirectoryListing("/sub/", 0, nil)
	require.NoError(t, err)

	byName := map[string]vfs.DirEntry{}
	for _, e := range listing {
		byName[e.Name] = e
	}
	require.Contains(t, byName, "..")
	dotdot := byName[".."]
	assert.True(t, dotdot.HasSize)
	assert.Equal(t, int64(4096), dotdot.Size)
}

func TestHostFetchDirectoryListingTranslatesNotFoundStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "OPTIONS":
			w.Header().Set("Allow", "GET, HEAD, PROPFIND, PROPPATCH, PUT, DELETE, MKCOL, MOVE")
			w.WriteHeader(http.StatusOK)
		case "PROPFIND":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	cfg := NewHostConfiguration(u, "", "", "", false, 0)
	h, err := NewHost(context.Background(), cfg)
	require.NoError(t, err)

	_, err = h.FetchDirectoryListing("/missing/", 0, nil)
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotFound))
}

func TestHostRenameStatsFirstAndAddsTrailingSlashForDirectories(t *testing.T) {
	var moveSrc, moveDst string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "OPTIONS":
			w.Header().Set("Allow", "GET, HEAD, PROPFIND, PROPPATCH, PUT, DELETE, MKCOL, MOVE")
			w.WriteHeader(http.StatusOK)
		case "PROPFIND":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/sub/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
</d:multistatus>`))
		case "MOVE":
			moveSrc = r.URL.Path
			moveDst = r.Header.Get("Destination")
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	cfg := NewHostConfiguration(u, "", "", "", false, 0)
	h, err := NewHost(context.Background(), cfg)
	require.NoError(t, err)

	_, err = h.FetchDirectoryListing("/", 0, nil)
	require.NoError(t, err)

	require.NoError(t, h.Rename("/sub", "/moved", nil))
	assert.Equal(t, "/sub/", moveSrc)
	assert.True(t, strings.HasSuffix(moveDst, "/moved/"))
}

func TestHostRenameFailsFastWhenSourceMissing(t *testing.T) {
	h := newTestHost(t)
	err := h.Rename("/does-not-exist", "/also-missing", nil)
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotFound))
}

func TestHostConfigurationEqualIgnoresDisplayFields(t *testing.T) {
	a := NewHostConfiguration("example.com", "bob", "secret", "dav", true, 443)
	b := NewHostConfiguration("example.com", "bob", "secret", "dav", true, 443)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.VerboseJunction(), b.VerboseJunction())

	c := NewHostConfiguration("example.com", "alice", "secret", "dav", true, 443)
	assert.False(t, a.Equal(c))
}
