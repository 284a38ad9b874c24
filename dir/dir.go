// Package dir implements directories as ordinary inodes whose content is an
// array of fixed-size entries. The first two entries are always "." and
// "..". Removing an entry tombstones it in place; Add reuses the first
// tombstone before growing the directory.
package dir

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/inode"
	"github.com/mit-pdos/go-filesys/util"
)

var (
	ErrExists      = errors.New("dir: name exists")
	ErrNotFound    = errors.New("dir: no such entry")
	ErrNotEmpty    = errors.New("dir: directory not empty")
	ErrBusy        = errors.New("dir: directory in use")
	ErrInvalidName = errors.New("dir: invalid name")
	ErrNotDir      = errors.New("dir: not a directory")
)

type Dir struct {
	ip  *inode.Inode
	pos uint64 // Readdir cursor
}

// Create makes a directory inode at sector bn with room for entryCnt
// entries (at least two), and fills in "." and "..". For the root, parent
// is bn.
func Create(ic *inode.Icache, bn common.Bnum, entryCnt uint64, parent common.Bnum) error {
	if err := ic.Create(bn, util.Max(entryCnt, 2)*EntrySize, true); err != nil {
		return err
	}
	ip, err := ic.Open(bn)
	if err != nil {
		return err
	}
	defer ip.Close()
	for i, e := range []Entry{{bn, ".", true}, {parent, "..", true}} {
		// inside the file, so no allocation
		n, err := ip.WriteAt(e.encode(), uint64(i)*EntrySize)
		if err != nil || n != EntrySize {
			panic("dir.Create")
		}
	}
	util.DPrintf(1, "dir.Create: %d parent %d", bn, parent)
	return nil
}

// Open wraps an open directory inode. It takes over the caller's reference
// to ip, and drops it if ip is not a directory.
func Open(ip *inode.Inode) (*Dir, error) {
	if !ip.IsDir() {
		ip.Close()
		return nil, fmt.Errorf("inode %d: %w", ip.Inumber(), ErrNotDir)
	}
	return &Dir{ip: ip}, nil
}

func OpenRoot(ic *inode.Icache) (*Dir, error) {
	ip, err := ic.Open(common.ROOTSECTOR)
	if err != nil {
		return nil, err
	}
	return Open(ip)
}

// Reopen returns a new Dir on the same inode with its own cursor.
func (dp *Dir) Reopen() *Dir {
	return &Dir{ip: dp.ip.Reopen()}
}

func (dp *Dir) Close() {
	if dp == nil {
		return
	}
	dp.ip.Close()
}

func (dp *Dir) Inode() *inode.Inode {
	return dp.ip
}

func (dp *Dir) entryAt(off uint64) (*Entry, bool) {
	b := make([]byte, EntrySize)
	if dp.ip.ReadAt(b, off) != EntrySize {
		return nil, false
	}
	return decodeEntry(b), true
}

// lookup returns the in-use entry named name and its offset.
func (dp *Dir) lookup(name string) (*Entry, uint64, bool) {
	for off := uint64(0); ; off += EntrySize {
		e, ok := dp.entryAt(off)
		if !ok {
			return nil, 0, false
		}
		if e.InUse && e.Name == name {
			return e, off, true
		}
	}
}

// Lookup returns the inode sector name refers to.
func (dp *Dir) Lookup(name string) (common.Bnum, error) {
	e, _, ok := dp.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return e.Sector, nil
}

// OpenEntry looks up name and opens its inode. The entries lock is held
// across both steps so a concurrent Remove cannot free the inode in between.
func (dp *Dir) OpenEntry(name string) (*inode.Inode, error) {
	dp.ip.LockEntries()
	defer dp.ip.UnlockEntries()
	e, _, ok := dp.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return dp.ip.Icache().Open(e.Sector)
}

// Add links name to the inode at bn.
func (dp *Dir) Add(name string, bn common.Bnum) error {
	if !validName(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	dp.ip.LockEntries()
	defer dp.ip.UnlockEntries()

	if _, _, ok := dp.lookup(name); ok {
		return fmt.Errorf("%q: %w", name, ErrExists)
	}
	off := uint64(0)
	for {
		e, ok := dp.entryAt(off)
		if !ok || !e.InUse {
			break
		}
		off += EntrySize
	}
	e := &Entry{Sector: bn, Name: name, InUse: true}
	n, err := dp.ip.WriteAt(e.encode(), off)
	if err != nil {
		return fmt.Errorf("add %q: %w", name, err)
	}
	if n != EntrySize {
		panic("Add: short write")
	}
	util.DPrintf(1, "dir.Add: %d: %q -> %d at %d", dp.ip.Inumber(), name, bn, off)
	return nil
}

// Remove unlinks name and marks its inode for deletion. A directory can
// only be removed when it is empty and nobody else has it open.
func (dp *Dir) Remove(name string) error {
	if name == "" || name[0] == '/' || name == "." || name == ".." {
		return fmt.Errorf("remove %q: %w", name, ErrInvalidName)
	}
	dp.ip.LockEntries()
	defer dp.ip.UnlockEntries()

	e, off, ok := dp.lookup(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	ip, err := dp.ip.Icache().Open(e.Sector)
	if err != nil {
		return err
	}
	defer ip.Close()

	if ip.IsDir() {
		// parent before child; ".." is never removed so this cannot cycle
		ip.LockEntries()
		defer ip.UnlockEntries()
		if ip.OpenCount() > 1 {
			return fmt.Errorf("%q: %w", name, ErrBusy)
		}
		sub := &Dir{ip: ip}
		if !sub.isEmpty() {
			return fmt.Errorf("%q: %w", name, ErrNotEmpty)
		}
	}

	e.InUse = false
	n, err := dp.ip.WriteAt(e.encode(), off)
	if err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	if n != EntrySize {
		panic("Remove: short write")
	}
	ip.Remove()
	util.DPrintf(1, "dir.Remove: %d: %q (inode %d)", dp.ip.Inumber(), name, e.Sector)
	return nil
}

// Readdir returns the name of the next in-use entry, including "." and
// "..". It returns false once the entries are exhausted; the cursor only
// moves forward.
func (dp *Dir) Readdir() (string, bool) {
	for {
		e, ok := dp.entryAt(dp.pos)
		if !ok {
			return "", false
		}
		dp.pos += EntrySize
		if e.InUse {
			return e.Name, true
		}
	}
}

// isEmpty reports whether dp has no in-use entries besides "." and "..".
func (dp *Dir) isEmpty() bool {
	for i, want := range []string{".", ".."} {
		e, ok := dp.entryAt(uint64(i) * EntrySize)
		if !ok || !e.InUse || e.Name != want {
			panic(fmt.Sprintf("isEmpty: dir %d: entry %d is not %q",
				dp.ip.Inumber(), i, want))
		}
	}
	for off := 2 * EntrySize; ; off += EntrySize {
		e, ok := dp.entryAt(off)
		if !ok {
			return true
		}
		if e.InUse {
			return false
		}
	}
}

// IsEmpty is isEmpty under the directory's entries lock.
func (dp *Dir) IsEmpty() bool {
	dp.ip.LockEntries()
	defer dp.ip.UnlockEntries()
	return dp.isEmpty()
}
