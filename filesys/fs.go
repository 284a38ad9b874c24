// Package filesys ties the sector device, free map, inode registry and
// directories together into a mountable file system with path names,
// per-process current directories and file handles.
//
// On-disk layout:
//
//	sector 0                  root directory inode
//	sectors 1 .. 1+nbitmap    free map, one bit per sector
//	the rest                  inodes, index sectors and data
package filesys

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/dir"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/freemap"
	"github.com/mit-pdos/go-filesys/inode"
	"github.com/mit-pdos/go-filesys/util"
)

// DirEntries is the initial capacity of a directory made by Mkdir.
const DirEntries uint64 = 16

var (
	ErrDeviceSize = errors.New("filesys: unusable device size")
	ErrIsDir      = errors.New("filesys: is a directory")
)

type FS struct {
	d  disk.Disk
	fm *freemap.Map
	ic *inode.Icache
}

func mkFS(d disk.Disk, fm *freemap.Map) *FS {
	return &FS{
		d:  d,
		fm: fm,
		ic: inode.MkIcache(d, fm),
	}
}

// Format lays out an empty file system on d, with a root directory that
// has room for rootEntries entries.
func Format(d disk.Disk, rootEntries uint64) (*FS, error) {
	sz := d.Size()
	if sz > common.MaxBnum+1 {
		return nil, fmt.Errorf("%d sectors: %w", sz, ErrDeviceSize)
	}
	fm := freemap.MkMap(d, common.FREEMAPSTART)
	if common.FREEMAPSTART+fm.Len() >= sz {
		return nil, fmt.Errorf("%d sectors: %w", sz, ErrDeviceSize)
	}
	fm.MarkUsed(common.ROOTSECTOR)
	for i := uint64(0); i < fm.Len(); i++ {
		fm.MarkUsed(fm.Start() + i)
	}
	fs := mkFS(d, fm)
	if err := dir.Create(fs.ic, common.ROOTSECTOR, rootEntries, common.ROOTSECTOR); err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}
	fm.Flush()
	d.Barrier()
	util.DPrintf(0, "format: %d sectors, %d free", sz, fm.NumFree())
	return fs, nil
}

// Mount loads a file system written by Format.
func Mount(d disk.Disk) (*FS, error) {
	sz := d.Size()
	if sz > common.MaxBnum+1 || common.FREEMAPSTART+freemap.NSectors(sz) >= sz {
		return nil, fmt.Errorf("%d sectors: %w", sz, ErrDeviceSize)
	}
	fs := mkFS(d, freemap.Load(d, common.FREEMAPSTART))
	root, err := dir.OpenRoot(fs.ic)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	root.Close()
	util.DPrintf(0, "mount: %d sectors, %d free", sz, fs.fm.NumFree())
	return fs, nil
}

// Close persists the free map and closes the device. Every handle must be
// closed first.
func (fs *FS) Close() {
	if n := fs.ic.NOpen(); n != 0 {
		util.DPrintf(0, "close: %d inodes still open", n)
	}
	fs.fm.Flush()
	fs.d.Barrier()
	fs.d.Close()
}

// Size is the device size in sectors.
func (fs *FS) Size() uint64 {
	return fs.d.Size()
}

// NumFree is the number of unallocated sectors.
func (fs *FS) NumFree() uint64 {
	return fs.fm.NumFree()
}

// NOpen is the number of distinct open inodes.
func (fs *FS) NOpen() uint64 {
	return fs.ic.NOpen()
}

// create makes a file (or directory) called name in dp. If anything fails
// after the inode was built, the inode and its sectors are released.
func (fs *FS) create(dp *dir.Dir, name string, size uint64, isDir bool) error {
	if dp.Inode().IsRemoved() {
		return fmt.Errorf("create %q in removed directory: %w", name, dir.ErrNotFound)
	}
	bn, ok := fs.fm.AllocNum()
	if !ok {
		return fmt.Errorf("create %q: %w", name, inode.ErrNoSpace)
	}
	var err error
	if isDir {
		err = dir.Create(fs.ic, bn, DirEntries, dp.Inode().Inumber())
	} else {
		err = fs.ic.Create(bn, size, false)
	}
	if err != nil {
		fs.fm.Release(bn, 1)
		fs.fm.Flush()
		return fmt.Errorf("create %q: %w", name, err)
	}
	if err := dp.Add(name, bn); err != nil {
		ip, oerr := fs.ic.Open(bn)
		if oerr != nil {
			panic("create: " + oerr.Error())
		}
		ip.Remove()
		ip.Close()
		return err
	}
	return nil
}
