package webdav

import (
	"context"

	"github.com/ncw/webdavfs/vfs"
	"github.com/ncw/webdavfs/webdav/transport"
)

// file is the concrete vfs.File returned by Host.CreateFile. Grounded on
// File.{h,cpp}: a detached handle that only spawns a connection once Read
// or Write is actually called, and is sequential-only in both directions.
type file struct {
	host *Host
	path string

	flags vfs.OpenFlags
	pos   int64
	size  int64 // -1 until known (read: stat'd; write: SetUploadSize)

	conn *transport.Connection
}

func newFile(host *Host, path string) *file {
	return &file{host: host, path: path, size: -1}
}

// IsOpened reports whether Open has succeeded and Close hasn't run yet.
func (f *file) IsOpened() bool { return f.flags != 0 }

// Pos returns the current read/write offset.
func (f *file) Pos() int64 { return f.pos }

// Size returns the file's size: known in advance for reads (from stat), or
// whatever was set via SetUploadSize for writes.
func (f *file) Size() int64 { return f.size }

// Eof reports whether there is nothing left to read.
func (f *file) Eof() bool { return !f.IsOpened() || f.pos == f.size }

// ReadParadigm reports this file's only supported read mode.
func (f *file) ReadParadigm() vfs.ReadParadigm { return vfs.ReadParadigmSequential }

// WriteParadigm reports this file's only supported write mode.
func (f *file) WriteParadigm() vfs.WriteParadigm { return vfs.WriteParadigmUpload }

// Open validates flags and, for reads, stats the file up front so Size and
// Eof are meaningful immediately. Grounded on File::Open.
func (f *file) Open(flags vfs.OpenFlags, cancel vfs.CancelChecker) error {
	if flags&vfs.OFAppend != 0 {
		return vfs.New(vfs.KindPermission)
	}

	if flags&vfs.OFRead != 0 {
		st, err := f.host.Stat(f.path, cancel)
		if err != nil {
			return err
		}
		if st.IsDir() {
			return vfs.New(vfs.KindIsDirectory)
		}
		f.size = st.Size
		f.flags = flags
		return nil
	}

	if flags&vfs.OFWrite != 0 {
		if flags&vfs.OFNoExist != 0 {
			if _, err := f.host.Stat(f.path, cancel); err == nil {
				return vfs.New(vfs.KindExists)
			}
		}
		f.flags = flags
		return nil
	}

	return vfs.ErrInvalidOpenFlags
}

// SetUploadSize fixes the total size of an upload. It can only be called
// once, before the first Write. Grounded on File::SetUploadSize.
func (f *file) SetUploadSize(size int64) error {
	if !f.IsOpened() || f.flags&vfs.OFWrite == 0 {
		return vfs.ErrInvalidOpenFlags
	}
	if f.size >= 0 {
		return vfs.ErrUploadSizeAlreadySet
	}
	f.size = size
	return nil
}

func (f *file) spawnDownloadConnectionIfNeeded() error {
	if f.conn != nil {
		return nil
	}
	target, err := f.host.absoluteURL(f.path)
	if err != nil {
		return err
	}
	conn := f.host.pool.GetRaw()
	f.host.authorize(conn)
	conn.SetCustomRequest("GET")
	conn.SetURL(target)
	conn.MakeNonBlocking(context.Background())
	f.conn = conn
	return nil
}

func (f *file) spawnUploadConnectionIfNeeded() error {
	if f.conn != nil {
		return nil
	}
	target, err := f.host.absoluteURL(f.path)
	if err != nil {
		return err
	}
	conn := f.host.pool.GetRaw()
	f.host.authorize(conn)
	conn.SetCustomRequest("PUT")
	conn.SetURL(target)
	conn.SetNonBlockingUpload(f.size)
	conn.MakeNonBlocking(context.Background())
	f.conn = conn
	return nil
}

// Read pulls up to len(buf) bytes from the server. Grounded on File::Read.
func (f *file) Read(buf []byte) (int, error) {
	if !f.IsOpened() || f.flags&vfs.OFRead == 0 {
		return 0, vfs.ErrInvalidOpenFlags
	}
	if len(buf) == 0 || f.Eof() {
		return 0, nil
	}
	if err := f.spawnDownloadConnectionIfNeeded(); err != nil {
		return 0, err
	}

	target := int64(f.conn.ResponseBody().Len() + len(buf))
	if err := f.conn.ReadBodyUpToSize(target); err != nil {
		return 0, errorFromTransport(err)
	}
	if status := f.conn.StatusCode(); status >= 300 {
		return 0, errorFromStatus(status, nil)
	}

	n := f.conn.ResponseBody().Read(buf)
	f.pos += int64(n)
	return n, nil
}

// Write pushes len(buf) bytes to the server, which must have been preceded
// by SetUploadSize. Grounded on File::Write.
func (f *file) Write(buf []byte) (int, error) {
	if !f.IsOpened() || f.flags&vfs.OFWrite == 0 {
		return 0, vfs.ErrInvalidOpenFlags
	}
	if f.size < 0 {
		return 0, vfs.ErrUploadSizeNotSet
	}
	if err := f.spawnUploadConnectionIfNeeded(); err != nil {
		return 0, err
	}

	before := f.conn.RequestBody().Len()
	f.conn.RequestBody().Append(buf)
	if err := f.conn.WriteBodyUpToSize(int64(before)); err != nil {
		return 0, errorFromTransport(err)
	}

	written := len(buf) - f.conn.RequestBody().Len() + before
	if written < 0 {
		written = 0
	}
	f.pos += int64(written)
	return written, nil
}

// Close finalises whichever direction was opened and always returns the
// connection to the pool. Grounded on File::Close.
func (f *file) Close() error {
	if !f.IsOpened() {
		return nil
	}
	defer func() {
		f.flags = 0
		f.pos = 0
		f.size = -1
	}()

	if f.flags&vfs.OFRead != 0 {
		if f.conn != nil {
			_ = f.conn.ReadBodyUpToSize(transport.AbortBodyRead)
			f.host.pool.Return(f.conn)
			f.conn = nil
		}
		return nil
	}

	// Write mode, but only if an upload size was actually configured: a
	// file opened for write and closed without any Write/SetUploadSize
	// call never touched the network and has nothing to conclude.
	if f.size < 0 {
		return nil
	}

	if f.conn == nil {
		// Materialise a zero-byte PUT so empty files still get created.
		if _, err := f.Write(nil); err != nil {
			return err
		}
	}

	var err error
	if f.pos < f.size {
		werr := f.conn.WriteBodyUpToSize(transport.AbortBodyWrite)
		if werr != nil {
			err = errorFromTransport(werr)
		}
	} else {
		werr := f.conn.WriteBodyUpToSize(transport.ConcludeBodyWrite)
		if werr != nil {
			err = errorFromTransport(werr)
		} else if status := f.conn.StatusCode(); status >= 300 {
			err = errorFromStatus(status, nil)
		} else {
			f.host.cache.CommitMkFile(f.path)
		}
	}

	f.host.pool.Return(f.conn)
	f.conn = nil
	return err
}

// Interface assertion, checked at compile time.
var _ vfs.File = (*file)(nil)
