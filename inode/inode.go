// Package inode implements files as inodes: a one-sector record mapping a
// byte range onto data sectors through direct, indirect and
// double-indirect pointer tiers.
//
// Concurrency contract: the inode record is guarded by a per-inode mutex,
// and growth of a file is serialized by a separate extension lock held for
// the whole allocation. Reads and writes of data sectors take no lock;
// concurrent writers to overlapping (or merely sector-sharing) ranges may
// interleave at sector granularity, and a reader may observe a write in
// progress. Readers never see a length whose sectors are not yet mapped.
package inode

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/txn"
	"github.com/mit-pdos/go-filesys/util"
)

type Inode struct {
	ic    *Icache
	bn    common.Bnum
	isDir bool

	mu           *sync.Mutex // protects the fields below
	data         dinode
	openCnt      uint64
	removed      bool
	denyWriteCnt uint64

	extendMu  *sync.Mutex // held across an extension
	entriesMu *sync.Mutex // serializes directory entry changes
}

func mkInode(ic *Icache, bn common.Bnum, di *dinode) *Inode {
	return &Inode{
		ic:        ic,
		bn:        bn,
		isDir:     di.isDir,
		mu:        new(sync.Mutex),
		data:      *di,
		openCnt:   1,
		extendMu:  new(sync.Mutex),
		entriesMu: new(sync.Mutex),
	}
}

func (ip *Inode) String() string {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return fmt.Sprintf("inode %d (%v) open %d deny %d removed %v",
		ip.bn, &ip.data, ip.openCnt, ip.denyWriteCnt, ip.removed)
}

// Inumber is the sector holding the inode record.
func (ip *Inode) Inumber() common.Bnum {
	return ip.bn
}

// Icache is the registry ip was opened through.
func (ip *Inode) Icache() *Icache {
	return ip.ic
}

func (ip *Inode) IsDir() bool {
	return ip.isDir
}

func (ip *Inode) Length() uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.data.length
}

func (ip *Inode) OpenCount() uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.openCnt
}

func (ip *Inode) IsRemoved() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.removed
}

// Reopen adds a reference to an already open inode.
func (ip *Inode) Reopen() *Inode {
	if ip == nil {
		return nil
	}
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.openCnt == 0 {
		panic("Reopen: inode not open")
	}
	ip.openCnt++
	return ip
}

// Close drops a reference. When the last reference to a removed inode goes
// away, its data sectors, index sectors and record sector are freed.
func (ip *Inode) Close() {
	if ip == nil {
		return
	}
	last, removed := ip.ic.release(ip)
	if last && removed {
		ip.free()
	}
}

// Remove marks the inode for deletion on last close. Current openers keep
// working with it.
func (ip *Inode) Remove() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.removed = true
	util.DPrintf(1, "Remove: inode %d", ip.bn)
}

func (ip *Inode) free() {
	// no references remain, so nobody else touches ip.data
	bns := owned(ip.ic.d, &ip.data)
	for _, bn := range bns {
		ip.ic.fm.Release(bn, 1)
	}
	// a stale inumber must not open as a live inode
	ip.ic.d.Write(ip.bn, make(disk.Block, common.SECTORSZ))
	ip.ic.fm.Release(ip.bn, 1)
	ip.ic.fm.Flush()
	util.DPrintf(1, "free: inode %d, %d sectors", ip.bn, len(bns)+1)
}

// DenyWrite blocks writes through every handle until a matching AllowWrite.
// Each opener may deny at most once.
func (ip *Inode) DenyWrite() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.denyWriteCnt >= ip.openCnt {
		panic("DenyWrite: more denials than openers")
	}
	ip.denyWriteCnt++
}

func (ip *Inode) AllowWrite() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.denyWriteCnt == 0 {
		panic("AllowWrite: writes not denied")
	}
	ip.denyWriteCnt--
}

func (ip *Inode) writeDenied() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.denyWriteCnt > 0
}

// LockEntries serializes changes to a directory's entries.
func (ip *Inode) LockEntries() {
	ip.entriesMu.Lock()
}

func (ip *Inode) UnlockEntries() {
	ip.entriesMu.Unlock()
}

// sectorFor returns the sector holding byte pos, if pos is inside the file.
func (ip *Inode) sectorFor(pos uint64) (common.Bnum, uint64, bool) {
	ip.mu.Lock()
	di := ip.data
	ip.mu.Unlock()
	bn, ok := sectorFor(ip.ic.d, &di, pos).Get()
	return bn, di.length, ok
}

// ReadAt copies up to len(p) bytes starting at byte off into p, stopping at
// end of file. It returns the number of bytes read.
func (ip *Inode) ReadAt(p []byte, off uint64) uint64 {
	var n uint64
	var bounce disk.Block
	size := uint64(len(p))
	for size > 0 {
		bn, length, ok := ip.sectorFor(off)
		if !ok {
			break
		}
		sectorOfs := off % common.SECTORSZ
		chunk := util.Min(size, util.Min(length-off, common.SECTORSZ-sectorOfs))
		if sectorOfs == 0 && chunk == common.SECTORSZ {
			ip.ic.d.ReadTo(bn, p[n:n+chunk])
		} else {
			if bounce == nil {
				bounce = make(disk.Block, common.SECTORSZ)
			}
			ip.ic.d.ReadTo(bn, bounce)
			copy(p[n:n+chunk], bounce[sectorOfs:sectorOfs+chunk])
		}
		size -= chunk
		off += chunk
		n += chunk
	}
	util.DPrintf(10, "ReadAt: inode %d off %d -> %d bytes", ip.bn, off-n, n)
	return n
}

// WriteAt copies p into the file starting at byte off, growing the file
// first if the write ends past end of file; any gap between the old end
// and off reads back as zeros. It returns the number of bytes written,
// which is 0 if writes are denied or the file cannot grow.
func (ip *Inode) WriteAt(p []byte, off uint64) (uint64, error) {
	if ip.writeDenied() {
		return 0, ErrWriteDenied
	}
	size := uint64(len(p))
	if size == 0 {
		return 0, nil
	}
	if util.SumOverflows(off, size) || off+size > common.MaxFileSize() {
		return 0, fmt.Errorf("write %d at %d: %w", size, off, ErrTooLarge)
	}
	if end := off + size; end > ip.Length() {
		ip.extendMu.Lock()
		err := ip.extendTo(end)
		ip.extendMu.Unlock()
		if err != nil {
			return 0, err
		}
	}

	var n uint64
	var bounce disk.Block
	for size > 0 {
		bn, length, ok := ip.sectorFor(off)
		if !ok {
			panic("WriteAt: unmapped sector inside file")
		}
		sectorOfs := off % common.SECTORSZ
		chunk := util.Min(size, common.SECTORSZ-sectorOfs)
		if sectorOfs == 0 && chunk == common.SECTORSZ {
			ip.ic.d.Write(bn, p[n:n+chunk])
		} else {
			if bounce == nil {
				bounce = make(disk.Block, common.SECTORSZ)
			}
			if sectorOfs == 0 && off+chunk >= length {
				// nothing past the chunk has ever been written
				for i := range bounce {
					bounce[i] = 0
				}
			} else {
				ip.ic.d.ReadTo(bn, bounce)
			}
			copy(bounce[sectorOfs:sectorOfs+chunk], p[n:n+chunk])
			ip.ic.d.Write(bn, bounce)
		}
		size -= chunk
		off += chunk
		n += chunk
	}
	util.DPrintf(10, "WriteAt: inode %d off %d <- %d bytes", ip.bn, off-n, n)
	return n, nil
}

// extendTo makes the file at least end bytes long. Caller holds extendMu;
// another writer may have grown the file while we waited for it.
func (ip *Inode) extendTo(end uint64) error {
	length := ip.Length()
	if end <= length {
		return nil
	}
	return ip.extend(end - length)
}

// extend grows the file by amount bytes. The new sectors are allocated and
// the index sectors and inode record written before the new length becomes
// visible in memory. On failure the file is unchanged and every sector
// allocated along the way is returned. Caller holds extendMu.
func (ip *Inode) extend(amount uint64) error {
	ip.mu.Lock()
	nd := ip.data
	ip.mu.Unlock()

	if util.SumOverflows(nd.length, amount) {
		return fmt.Errorf("extend by %d: %w", amount, ErrTooLarge)
	}
	target := nd.length + amount
	have := util.RoundUp(nd.length, common.SECTORSZ)
	want := util.RoundUp(target, common.SECTORSZ)
	if want > common.MAXSECTORS {
		return fmt.Errorf("extend to %d: %w", target, ErrTooLarge)
	}

	tx := txn.Begin(ip.ic.d, ip.ic.fm)
	if !grow(tx, &nd, have, want) {
		util.DPrintf(1, "extend: inode %d to %d: out of space", ip.bn, target)
		tx.Abort()
		return fmt.Errorf("extend to %d: %w", target, ErrNoSpace)
	}
	nd.length = target
	tx.Commit()
	ip.ic.d.Write(ip.bn, nd.encode())

	ip.mu.Lock()
	ip.data = nd
	ip.mu.Unlock()
	util.DPrintf(5, "extend: inode %d %d -> %d", ip.bn, target-amount, target)
	return nil
}
