package api

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/dav/sub/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/></d:resourcetype>
        <d:getlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</d:getlastmodified>
        <d:creationdate>2006-01-02T15:04:05Z</d:creationdate>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/dav/sub/file.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:getcontentlength>42</d:getcontentlength>
        <d:getlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</d:getlastmodified>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestMultistatusParsing(t *testing.T) {
	var ms Multistatus
	require.NoError(t, xml.Unmarshal([]byte(sampleMultistatus), &ms))
	require.Len(t, ms.Responses, 2)

	dir := ms.Responses[0]
	assert.Equal(t, "/dav/sub/", dir.Href)
	assert.True(t, dir.Propstat.Prop.IsDir())
	assert.True(t, dir.Propstat.StatusOK())

	file := ms.Responses[1]
	assert.False(t, file.Propstat.Prop.IsDir())
	assert.Equal(t, int64(42), file.Propstat.Prop.Size)
}

func TestPropstatStatusCode(t *testing.T) {
	p := Propstat{Status: "HTTP/1.1 404 Not Found"}
	assert.Equal(t, 404, p.StatusCode())
	assert.False(t, p.StatusOK())
}

func TestTimeUnmarshalTriesMultipleFormats(t *testing.T) {
	type wrapper struct {
		Modified Time `xml:"modified"`
	}
	for _, body := range []string{
		`<w><modified>Mon, 02 Jan 2006 15:04:05 GMT</modified></w>`,
		`<w><modified>Mon, 02 Jan 2006 15:04:05 +0000</modified></w>`,
	} {
		var w wrapper
		require.NoError(t, xml.Unmarshal([]byte(body), &w))
		assert.Equal(t, 2006, time.Time(w.Modified).Year())
	}
}

func TestTimeUnmarshalMemoisesMatchedLayoutPerElement(t *testing.T) {
	formatCache.Flush()
	type wrapper struct {
		Modified Time `xml:"memo_test_modified"`
	}
	var w wrapper
	require.NoError(t, xml.Unmarshal([]byte(`<w><memo_test_modified>Mon, 02 Jan 2006 15:04:05 GMT</memo_test_modified></w>`), &w))

	cached, ok := formatCache.Get("memo_test_modified")
	require.True(t, ok)
	assert.Equal(t, time.RFC1123, cached)
}

func TestParseCreationDate(t *testing.T) {
	tm, ok := ParseCreationDate("2006-01-02T15:04:05Z")
	require.True(t, ok)
	assert.Equal(t, 2006, tm.Year())

	_, ok = ParseCreationDate("")
	assert.False(t, ok)
}
