// Package cache implements the path-keyed directory listing cache that sits
// in front of the WebDAV request layer, grounded on Cache.{h,cpp}.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ncw/webdavfs/vfs"
)

// Freshness is how long a committed listing is servable without a refresh,
// fixed at g_ListingTimeout's 60 seconds in the original.
const Freshness = 60 * time.Second

// LookupResult is the outcome of a point lookup against the cache.
type LookupResult int

// The three outcomes Item can report.
const (
	LookupOK LookupResult = iota
	LookupUnknown
	LookupNonExist
)

type directory struct {
	fetchTime     time.Time
	items         []vfs.DirEntry // sorted by Name
	dirtyMarks    []bool         // parallel to items
	hasDirtyItems bool
}

func (d *directory) find(name string) (int, bool) {
	i := sort.Search(len(d.items), func(i int) bool { return d.items[i].Name >= name })
	if i < len(d.items) && d.items[i].Name == name {
		return i, true
	}
	return i, false
}

func (d *directory) outdated() bool {
	return time.Since(d.fetchTime) >= Freshness
}

type observer struct {
	ticket  vfs.ObservationTicket
	handler vfs.ChangeHandler
}

// Cache holds one directory snapshot per path plus the subscribers watching
// each path for changes. The zero value is not usable; call New.
type Cache struct {
	mu   sync.Mutex
	dirs map[string]*directory

	obsMu     sync.Mutex
	observers map[string][]observer
	lastTicket uint64
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		dirs:      make(map[string]*directory),
		observers: make(map[string][]observer),
	}
}

// deconstructPath splits "/a/b/c" into directory "/a/b/" and filename "c",
// and "/a/b/" into directory "/a/b/" and filename "" (itself), mirroring
// PathRoutines.h's DeconstructPath.
func deconstructPath(path string) (dir, filename string) {
	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "/", trimmed
	}
	return trimmed[:i+1], trimmed[i+1:]
}

// CommitListing replaces the cached snapshot of dirPath with items, stamps
// the fetch time as now, and notifies observers of dirPath. Grounded on
// Cache::CommitListing.
func (c *Cache) CommitListing(dirPath string, items []vfs.DirEntry) {
	sorted := append([]vfs.DirEntry(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	c.mu.Lock()
	c.dirs[dirPath] = &directory{
		fetchTime: time.Now(),
		items:     sorted,
	}
	c.mu.Unlock()

	c.notify(dirPath)
}

// Listing returns the cached snapshot of dirPath if it exists, is fully
// clean, and isn't outdated. Grounded on Cache::Listing.
func (c *Cache) Listing(dirPath string) (vfs.Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dirs[dirPath]
	if !ok || d.hasDirtyItems || d.outdated() {
		return nil, false
	}
	return append(vfs.Listing(nil), d.items...), true
}

// Item looks up a single entry by full path, splitting it into its parent
// directory and filename first. Grounded on Cache::Item.
func (c *Cache) Item(path string) (vfs.DirEntry, LookupResult) {
	dirPath, filename := deconstructPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dirs[dirPath]
	if !ok {
		return vfs.DirEntry{}, LookupUnknown
	}
	i, found := d.find(filename)
	if !found {
		if d.outdated() {
			return vfs.DirEntry{}, LookupUnknown
		}
		return vfs.DirEntry{}, LookupNonExist
	}
	if d.dirtyMarks != nil && i < len(d.dirtyMarks) && d.dirtyMarks[i] {
		return vfs.DirEntry{}, LookupUnknown
	}
	if d.outdated() {
		return vfs.DirEntry{}, LookupUnknown
	}
	return d.items[i], LookupOK
}

// DiscardListing unconditionally drops any cached snapshot of dirPath,
// forcing the next Listing/Item to report Unknown. Grounded on
// Cache::DiscardListing.
func (c *Cache) DiscardListing(dirPath string) {
	c.mu.Lock()
	delete(c.dirs, dirPath)
	c.mu.Unlock()
}

// CommitMkDir records that a directory was created at path, inserting it
// into its parent's cached snapshot (or replacing the entry if already
// present), marking that slot dirty and notifying the parent's observers.
// Grounded on
// Cache::CommitMkDir.
func (c *Cache) CommitMkDir(path string) {
	c.commitCreate(path, vfs.TypeDirectory)
}

// CommitMkFile records that a regular file was created at path. Grounded on
// Cache::CommitMkFile.
func (c *Cache) CommitMkFile(path string) {
	c.commitCreate(path, vfs.TypeRegular)
}

func (c *Cache) commitCreate(path string, kind vfs.EntryType) {
	dirPath, filename := deconstructPath(path)
	mode := vfs.ModeReg
	if kind == vfs.TypeDirectory {
		mode = vfs.ModeDir
	}

	c.mu.Lock()
	d, ok := c.dirs[dirPath]
	if !ok {
		c.mu.Unlock()
		return
	}
	i, found := d.find(filename)
	entry := vfs.DirEntry{Name: filename, Type: kind, Mode: mode}
	if found {
		d.items[i] = entry
		c.markDirtyLocked(d, i)
	} else {
		d.items = append(d.items, vfs.DirEntry{})
		copy(d.items[i+1:], d.items[i:])
		d.items[i] = entry
		c.insertDirtyLocked(d, i)
	}
	c.mu.Unlock()

	c.notify(dirPath)
}

func (c *Cache) markDirtyLocked(d *directory, i int) {
	if d.dirtyMarks == nil {
		d.dirtyMarks = make([]bool, len(d.items))
	}
	for len(d.dirtyMarks) < len(d.items) {
		d.dirtyMarks = append(d.dirtyMarks, false)
	}
	d.dirtyMarks[i] = true
	d.hasDirtyItems = true
}

func (c *Cache) insertDirtyLocked(d *directory, i int) {
	if d.dirtyMarks == nil {
		d.dirtyMarks = make([]bool, len(d.items)-1)
	}
	d.dirtyMarks = append(d.dirtyMarks, false)
	copy(d.dirtyMarks[i+1:], d.dirtyMarks[i:])
	d.dirtyMarks[i] = true
	d.hasDirtyItems = true
}

// CommitRmDir records that a directory was removed: it is unlinked from its
// parent's snapshot and its own snapshot (if any) is discarded. Grounded on
// Cache::CommitRmDir.
func (c *Cache) CommitRmDir(path string) {
	c.CommitUnlink(path)
	dirPath := strings.TrimSuffix(path, "/") + "/"
	c.DiscardListing(dirPath)
}

// CommitUnlink records that an entry was removed from its parent's
// snapshot: the entry and its dirty mark are removed from the slices and the
// parent is flagged as having dirty items, so Listing stops serving it.
// Grounded on Cache::CommitUnlink.
func (c *Cache) CommitUnlink(path string) {
	dirPath, filename := deconstructPath(path)

	c.mu.Lock()
	d, ok := c.dirs[dirPath]
	if !ok {
		c.mu.Unlock()
		return
	}
	i, found := d.find(filename)
	if found {
		d.items = append(d.items[:i], d.items[i+1:]...)
		if d.dirtyMarks != nil && i < len(d.dirtyMarks) {
			d.dirtyMarks = append(d.dirtyMarks[:i], d.dirtyMarks[i+1:]...)
		}
		d.hasDirtyItems = true
	}
	c.mu.Unlock()

	c.notify(dirPath)
}

// CommitMove records that oldPath was renamed to newPath. If oldPath was
// itself a cached directory, its whole snapshot moves to the new key.
// Grounded on Cache::CommitMove.
func (c *Cache) CommitMove(oldPath, newPath string) {
	oldDirPath := strings.TrimSuffix(oldPath, "/") + "/"
	newDirPath := strings.TrimSuffix(newPath, "/") + "/"

	oldEntry, lookup := c.Item(oldPath)
	kind := vfs.TypeRegular
	if lookup == LookupOK {
		kind = oldEntry.Type
	}
	mode := vfs.ModeReg
	if kind == vfs.TypeDirectory {
		mode = vfs.ModeDir
	}

	c.mu.Lock()
	if d, ok := c.dirs[oldDirPath]; ok {
		delete(c.dirs, oldDirPath)
		c.dirs[newDirPath] = d
	}
	c.mu.Unlock()

	c.CommitUnlink(oldPath)

	_, newName := deconstructPath(newPath)
	parentDir, _ := deconstructPath(newPath)
	c.mu.Lock()
	d, ok := c.dirs[parentDir]
	if ok {
		i, found := d.find(newName)
		entry := vfs.DirEntry{Name: newName, Type: kind, Mode: mode}
		if found {
			d.items[i] = entry
			c.markDirtyLocked(d, i)
		} else {
			d.items = append(d.items, vfs.DirEntry{})
			copy(d.items[i+1:], d.items[i:])
			d.items[i] = entry
			c.insertDirtyLocked(d, i)
		}
	}
	c.mu.Unlock()

	c.notify(parentDir)
}

// Observe registers handler to be called synchronously whenever dirPath's
// cached snapshot changes, returning a ticket to pass to StopObserving.
// Grounded on Cache::Observe; tickets start at 1, 0 is never issued.
func (c *Cache) Observe(dirPath string, handler vfs.ChangeHandler) vfs.ObservationTicket {
	ticket := vfs.ObservationTicket(atomic.AddUint64(&c.lastTicket, 1))

	c.obsMu.Lock()
	c.observers[dirPath] = append(c.observers[dirPath], observer{ticket: ticket, handler: handler})
	c.obsMu.Unlock()

	return ticket
}

// StopObserving removes a previously registered observation.
func (c *Cache) StopObserving(ticket vfs.ObservationTicket) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	for path, obs := range c.observers {
		for i, o := range obs {
			if o.ticket == ticket {
				c.observers[path] = append(obs[:i], obs[i+1:]...)
				return
			}
		}
	}
}

// notify fires every observer of dirPath. Always called after the
// directory-snapshot mutex has been released, preserving the fixed lock
// order (directory mutex before observer mutex) spelled out in the original
// design.
func (c *Cache) notify(dirPath string) {
	c.obsMu.Lock()
	handlers := make([]vfs.ChangeHandler, len(c.observers[dirPath]))
	for i, o := range c.observers[dirPath] {
		handlers[i] = o.handler
	}
	c.obsMu.Unlock()

	for _, h := range handlers {
		h()
	}
}
