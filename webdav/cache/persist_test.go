package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncw/webdavfs/vfs"
)

func TestBoltPersisterMirrorsAndPreloads(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	persister, err := OpenBoltPersister(dbPath)
	require.NoError(t, err)

	c := New()
	pc := NewPersisted(c, persister)
	pc.CommitListing("/dir/", []vfs.DirEntry{{Name: "a.txt", Type: vfs.TypeRegular}})

	// Mirror runs asynchronously; give it a moment to land.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, persister.Close())

	reopened, err := OpenBoltPersister(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	fresh := New()
	reopened.Preload(fresh)

	_, ok := fresh.Listing("/dir/")
	assert.False(t, ok, "preloaded listing should read as outdated, not fresh")

	entry, res := fresh.Item("/dir/a.txt")
	assert.Equal(t, LookupUnknown, res, "item lookup against an outdated listing reports Unknown")
	_ = entry
}
