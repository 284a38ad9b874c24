package inode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/freemap"
	"github.com/mit-pdos/go-filesys/txn"
	"github.com/mit-pdos/go-filesys/util"
)

var (
	ErrNoSpace     = errors.New("inode: no free sectors")
	ErrTooLarge    = errors.New("inode: exceeds maximum file size")
	ErrWriteDenied = errors.New("inode: writes denied")
	ErrCorrupt     = errors.New("inode: bad magic")
)

// An icacheShard holds the open inodes whose sector hashes to it.
type icacheShard struct {
	mu   *sync.Mutex
	open map[common.Bnum]*Inode
}

// Icache is the registry of open inodes. There is at most one Inode per
// sector at any time, shared by every opener.
//
// Lock order: shard mu, then Inode.mu.
type Icache struct {
	d      disk.Disk
	fm     *freemap.Map
	shards []*icacheShard
}

const NSHARD uint64 = 17

func mkIcacheShard() *icacheShard {
	return &icacheShard{
		mu:   new(sync.Mutex),
		open: make(map[common.Bnum]*Inode),
	}
}

func MkIcache(d disk.Disk, fm *freemap.Map) *Icache {
	var shards []*icacheShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkIcacheShard())
	}
	return &Icache{
		d:      d,
		fm:     fm,
		shards: shards,
	}
}

func (ic *Icache) shard(bn common.Bnum) *icacheShard {
	return ic.shards[bn%NSHARD]
}

// Disk returns the device inodes are stored on.
func (ic *Icache) Disk() disk.Disk {
	return ic.d
}

// FreeMap returns the allocator inode sectors come from.
func (ic *Icache) FreeMap() *freemap.Map {
	return ic.fm
}

// Create writes a new inode of the given length at sector bn, which the
// caller has already allocated. The data sectors come zero-filled. On
// failure nothing is allocated and bn is untouched.
func (ic *Icache) Create(bn common.Bnum, length uint64, isDir bool) error {
	nsect := util.RoundUp(length, common.SECTORSZ)
	if nsect > common.MAXSECTORS {
		return fmt.Errorf("create %d bytes: %w", length, ErrTooLarge)
	}
	di := mkDinode(isDir)
	tx := txn.Begin(ic.d, ic.fm)
	if !grow(tx, di, 0, nsect) {
		tx.Abort()
		return fmt.Errorf("create %d bytes: %w", length, ErrNoSpace)
	}
	di.length = length
	tx.Commit()
	ic.d.Write(bn, di.encode())
	util.DPrintf(1, "Create: inode %d %v", bn, di)
	return nil
}

// Open returns the inode at sector bn. If it is already open, the existing
// Inode is shared and its open count bumped.
func (ic *Icache) Open(bn common.Bnum) (*Inode, error) {
	s := ic.shard(bn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ip, ok := s.open[bn]; ok {
		ip.mu.Lock()
		ip.openCnt++
		ip.mu.Unlock()
		return ip, nil
	}
	di := decode(ic.d.Read(bn))
	if di.magic != common.INODEMAGIC {
		return nil, fmt.Errorf("open sector %d: %w", bn, ErrCorrupt)
	}
	ip := mkInode(ic, bn, di)
	s.open[bn] = ip
	util.DPrintf(5, "Open: inode %d %v", bn, di)
	return ip, nil
}

// NOpen reports how many distinct inodes are open.
func (ic *Icache) NOpen() uint64 {
	var n uint64
	for _, s := range ic.shards {
		s.mu.Lock()
		n += uint64(len(s.open))
		s.mu.Unlock()
	}
	return n
}

// release drops one reference to ip. It reports whether that was the last
// reference, in which case the registry entry is gone, and whether ip was
// marked removed.
func (ic *Icache) release(ip *Inode) (bool, bool) {
	s := ic.shard(ip.bn)
	s.mu.Lock()
	defer s.mu.Unlock()
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.openCnt == 0 {
		panic("release: inode not open")
	}
	if ip.denyWriteCnt >= ip.openCnt {
		panic("release: deny-write outlives its opener")
	}
	ip.openCnt--
	if ip.openCnt > 0 {
		return false, false
	}
	delete(s.open, ip.bn)
	return true, ip.removed
}
