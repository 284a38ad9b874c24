package filesys

import (
	"fmt"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/dir"
	"github.com/mit-pdos/go-filesys/inode"
)

// A File is an open file or directory with its own position. Handles on
// the same inode share its data but not their positions.
type File struct {
	ip     *inode.Inode
	d      *dir.Dir // directories only, for Readdir
	pos    uint64
	denied bool
}

// mkFile takes over the caller's reference to ip.
func mkFile(ip *inode.Inode) *File {
	f := &File{ip: ip}
	if ip.IsDir() {
		d, err := dir.Open(ip)
		if err != nil {
			panic("mkFile: " + err.Error())
		}
		f.d = d
	}
	return f
}

// Reopen returns a new handle on the same inode, positioned at the start.
func (f *File) Reopen() *File {
	return mkFile(f.ip.Reopen())
}

// Close drops the handle, lifting its write denial if it has one.
func (f *File) Close() {
	if f == nil {
		return
	}
	f.AllowWrite()
	f.ip.Close()
}

func (f *File) IsDir() bool {
	return f.ip.IsDir()
}

func (f *File) Inumber() common.Bnum {
	return f.ip.Inumber()
}

func (f *File) Length() uint64 {
	return f.ip.Length()
}

// Read reads from the current position and advances it.
func (f *File) Read(p []byte) uint64 {
	n := f.ip.ReadAt(p, f.pos)
	f.pos += n
	return n
}

// ReadAt reads at off without moving the position.
func (f *File) ReadAt(p []byte, off uint64) uint64 {
	return f.ip.ReadAt(p, off)
}

// Write writes at the current position and advances it. Directories can
// only be changed through Mkdir, Create and Remove.
func (f *File) Write(p []byte) (uint64, error) {
	n, err := f.WriteAt(p, f.pos)
	f.pos += n
	return n, err
}

func (f *File) WriteAt(p []byte, off uint64) (uint64, error) {
	if f.IsDir() {
		return 0, fmt.Errorf("write inode %d: %w", f.Inumber(), ErrIsDir)
	}
	return f.ip.WriteAt(p, off)
}

// Seek sets the position; it may be past end of file.
func (f *File) Seek(pos uint64) {
	f.pos = pos
}

func (f *File) Tell() uint64 {
	return f.pos
}

// DenyWrite blocks writes to the inode through any handle until this
// handle calls AllowWrite or is closed. Repeated calls are no-ops.
func (f *File) DenyWrite() {
	if !f.denied {
		f.denied = true
		f.ip.DenyWrite()
	}
}

func (f *File) AllowWrite() {
	if f.denied {
		f.denied = false
		f.ip.AllowWrite()
	}
}

// Readdir returns the next entry name of a directory, skipping "." and
// "..". It returns false at the end, or if f is not a directory.
func (f *File) Readdir() (string, bool) {
	if f.d == nil {
		return "", false
	}
	for {
		name, ok := f.d.Readdir()
		if !ok {
			return "", false
		}
		if name != "." && name != ".." {
			return name, true
		}
	}
}
