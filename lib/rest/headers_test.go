package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Depth", "0")
	SetHeaders(h, map[string]string{"Depth": "1", "translate": "f"})
	assert.Equal(t, "1", h.Get("Depth"))
	assert.Equal(t, "f", h.Get("translate"))
}

func TestParseSizeFromHeadersContentLength(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1234")
	assert.Equal(t, int64(1234), ParseSizeFromHeaders(h))
}

func TestParseSizeFromHeadersContentRangeWithTotal(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Range", "bytes 0-99/500")
	assert.Equal(t, int64(500), ParseSizeFromHeaders(h))
}

func TestParseSizeFromHeadersContentRangeUnknownTotal(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Range", "bytes 0-99/*")
	assert.Equal(t, int64(100), ParseSizeFromHeaders(h))
}

func TestParseSizeFromHeadersIndeterminate(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, int64(-1), ParseSizeFromHeaders(h))
}
