// Package vfs defines the narrow surface a filesystem backend exposes to the
// generic VFS dispatch framework that selects a host by tag.
//
// The framework itself — tag-based host selection, the licensing/UI shell
// around it, and the host-independent listing/stat containers living outside
// this module — is an external collaborator (see spec §1, §6.3) and is
// deliberately not implemented here. This package only carries the minimal
// types and interfaces a backend such as webdav.Host needs to satisfy that
// collaborator's contract, grounded on rclone's fs.Fs/fs.Object/fs.DirEntry
// shape and on Nimble Commander's VFSStat/VFSDirEnt/ListingInput.
package vfs

import "time"

// Unix mode bits used for directory and regular file entries, fixed per
// spec §6.3.
const (
	ModeDir uint32 = 0o040700 // S_IRUSR|S_IWUSR|S_IFDIR|S_IXUSR
	ModeReg uint32 = 0o100600 // S_IRUSR|S_IWUSR|S_IFREG
)

// EntryType is the coarse dirent type (DT_DIR / DT_REG).
type EntryType uint8

// The two entry types this core ever produces.
const (
	TypeRegular EntryType = iota
	TypeDirectory
)

// DirEntry is one row of a materialised directory listing, the Go analogue
// of Nimble Commander's ListingInput columns (filename, unix mode, unix
// type, size, btime/mtime/ctime) built from a single entry.
type DirEntry struct {
	Name    string
	Mode    uint32
	Type    EntryType
	Size    int64
	HasSize bool
	Btime   time.Time
	HasBtime bool
	Mtime   time.Time
	HasMtime bool
	Ctime   time.Time
	HasCtime bool
}

// IsDir reports whether the entry describes a directory.
func (e DirEntry) IsDir() bool { return e.Type == TypeDirectory }

// Listing is a complete, ordered directory snapshot as handed back to a
// caller of FetchDirectoryListing.
type Listing []DirEntry

// Stat is the subset of stat(2) information this core can report, mirroring
// Nimble Commander's VFSStat with its "meaning" bits folded into HasXxx
// flags.
type Stat struct {
	Mode     uint32
	Size     int64
	HasSize  bool
	Btime    time.Time
	HasBtime bool
	Mtime    time.Time
	HasMtime bool
	Ctime    time.Time
	HasCtime bool
}

// IsDir reports whether the stat result describes a directory.
func (s Stat) IsDir() bool { return s.Mode&0o040000 != 0 }

// StatFS is the subset of statfs(2) information this core can report.
type StatFS struct {
	TotalBytes int64
	FreeBytes  int64
	AvailBytes int64
	VolumeName string
}

// CancelChecker is polled by long-running operations; returning true asks
// the operation to abort with ErrCancelled at the next opportunity.
// webdav.Host polls it only between entries in IterateDirectoryListing; its
// other methods accept a checker but never consult it.
type CancelChecker func() bool

// Cancelled reports whether checker currently signals cancellation. A nil
// checker never cancels.
func Cancelled(checker CancelChecker) bool {
	return checker != nil && checker()
}

// OpenFlags is the bitmask a caller passes to File.Open.
type OpenFlags uint32

// The flag bits understood by File.Open.
const (
	OFRead OpenFlags = 1 << iota
	OFWrite
	OFCreate
	OFNoExist // fail with Exists if the target is already present
	OFAppend  // always refused: no host in this core supports append
)

// FetchFlags is the bitmask a caller passes to FetchDirectoryListing.
type FetchFlags uint32

// The flag bits understood by FetchDirectoryListing.
const (
	FNoDotDot FetchFlags = 1 << iota
	FForceRefresh
)

// ReadParadigm describes how a File supports Read.
type ReadParadigm int

// The read paradigms a File can report.
const (
	ReadParadigmSequential ReadParadigm = iota
)

// WriteParadigm describes how a File supports Write.
type WriteParadigm int

// The write paradigms a File can report.
const (
	WriteParadigmUpload WriteParadigm = iota
)

// ObservationTicket identifies one active directory-change registration.
type ObservationTicket uint64

// ChangeHandler is invoked synchronously, on the thread that committed the
// mutating cache operation, whenever a directory it observes changes.
type ChangeHandler func()

// File is the object returned by Host.CreateFile: a detached, not-yet-open
// handle onto a single path.
type File interface {
	Open(flags OpenFlags, cancel CancelChecker) error
	IsOpened() bool
	Close() error
	Pos() int64
	Size() int64
	Eof() bool
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	SetUploadSize(size int64) error
	ReadParadigm() ReadParadigm
	WriteParadigm() WriteParadigm
}

// Host is the capability set a generic VFS caller needs from any backend,
// grounded on WebDAVHost's public surface (§4.6/§6.3). The WebDAV host is
// one of many possible variants; no host-hierarchy dependency appears here.
type Host interface {
	FetchDirectoryListing(path string, flags FetchFlags, cancel CancelChecker) (Listing, error)
	IterateDirectoryListing(path string, handler func(name string, isDir bool) bool, cancel CancelChecker) error
	Stat(path string, cancel CancelChecker) (Stat, error)
	StatFS(path string, cancel CancelChecker) (StatFS, error)
	CreateDirectory(path string, cancel CancelChecker) error
	RemoveDirectory(path string, cancel CancelChecker) error
	Unlink(path string, cancel CancelChecker) error
	Rename(oldPath, newPath string, cancel CancelChecker) error
	CreateFile(path string) (File, error)
	ObserveDirectoryChanges(path string, handler ChangeHandler) ObservationTicket
	StopObserving(ticket ObservationTicket)
	IsWritable() bool
	IsCaseSensitiveAtPath(path string) bool
}
