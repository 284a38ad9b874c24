// Package freemap is the free-space bitmap: one bit per device sector, set
// when the sector is in use.
//
// The bitmap lives in memory and is written back to a fixed run of sectors
// on Flush.
package freemap

import (
	"sync"

	"github.com/diskfs/go-diskfs/util/bitmap"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/util"
)

type Map struct {
	lock  *sync.Mutex // protects bits, nfree, next and dirty
	d     disk.Disk
	start common.Bnum // first bitmap sector on d
	len   uint64      // # bitmap sectors
	max   uint64      // # sectors tracked
	bits  *bitmap.Bitmap
	nfree uint64
	next  uint64 // first number to try
	dirty bool
}

// NSectors reports how many bitmap sectors are needed to track max sectors.
func NSectors(max uint64) uint64 {
	return util.RoundUp(max, common.NBITSECTOR)
}

// MkMap creates an all-free map for the sectors of d, stored at start.
func MkMap(d disk.Disk, start common.Bnum) *Map {
	max := d.Size()
	return &Map{
		lock:  new(sync.Mutex),
		d:     d,
		start: start,
		len:   NSectors(max),
		max:   max,
		bits:  bitmap.NewBits(int(NSectors(max) * common.NBITSECTOR)),
		nfree: max,
		next:  0,
		dirty: true,
	}
}

// Load reads a map previously written by Flush.
func Load(d disk.Disk, start common.Bnum) *Map {
	m := MkMap(d, start)
	m.nfree = 0
	for i := uint64(0); i < m.len; i++ {
		blk := d.Read(m.start + i)
		for j := uint64(0); j < common.NBITSECTOR; j++ {
			n := i*common.NBITSECTOR + j
			if n >= m.max {
				break
			}
			if blk[j/8]&(1<<(j%8)) != 0 {
				m.setBit(n)
			} else {
				m.nfree += 1
			}
		}
	}
	m.dirty = false
	util.DPrintf(1, "freemap: loaded %d sectors, %d free", m.max, m.nfree)
	return m
}

// Start returns the first sector holding the bitmap; Len how many sectors
// it spans.
func (m *Map) Start() common.Bnum {
	return m.start
}

func (m *Map) Len() uint64 {
	return m.len
}

func (m *Map) isSet(n uint64) bool {
	set, err := m.bits.IsSet(int(n))
	if err != nil {
		panic("freemap: " + err.Error())
	}
	return set
}

func (m *Map) setBit(n uint64) {
	if err := m.bits.Set(int(n)); err != nil {
		panic("freemap: " + err.Error())
	}
}

func (m *Map) clearBit(n uint64) {
	if err := m.bits.Clear(int(n)); err != nil {
		panic("freemap: " + err.Error())
	}
}

// runFree reports whether [n, n+cnt) are all free. Assumes lock held.
func (m *Map) runFree(n uint64, cnt uint64) bool {
	for i := n; i < n+cnt; i++ {
		if m.isSet(i) {
			return false
		}
	}
	return true
}

// Allocate finds cnt consecutive free sectors, marks them used and returns
// the first one. The search starts after the last allocation and wraps
// around once.
func (m *Map) Allocate(cnt uint64) (common.Bnum, bool) {
	if cnt == 0 || cnt > m.max {
		return 0, false
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if cnt > m.nfree {
		return 0, false
	}
	start := m.next
	if start+cnt > m.max {
		start = 0
	}
	n := start
	for {
		if n+cnt <= m.max && m.runFree(n, cnt) {
			for i := n; i < n+cnt; i++ {
				m.setBit(i)
			}
			m.nfree -= cnt
			m.next = (n + cnt) % m.max
			m.dirty = true
			util.DPrintf(5, "freemap: allocate %d at %d", cnt, n)
			return common.Bnum(n), true
		}
		n += 1
		if n+cnt > m.max {
			n = 0
		}
		if n == start {
			return 0, false
		}
	}
}

// AllocNum allocates a single sector.
func (m *Map) AllocNum() (common.Bnum, bool) {
	return m.Allocate(1)
}

// Release frees cnt sectors starting at bn. Every one must be in use.
func (m *Map) Release(bn common.Bnum, cnt uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if bn+cnt > m.max {
		panic("Release")
	}
	for i := bn; i < bn+cnt; i++ {
		if !m.isSet(i) {
			panic("Release: sector already free")
		}
		m.clearBit(i)
	}
	m.nfree += cnt
	m.dirty = true
	util.DPrintf(5, "freemap: release %d at %d", cnt, bn)
}

// MarkUsed marks bn in use without allocating it, e.g. for sectors reserved
// by the on-disk layout.
func (m *Map) MarkUsed(bn common.Bnum) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if bn >= m.max {
		panic("MarkUsed")
	}
	if !m.isSet(bn) {
		m.setBit(bn)
		m.nfree -= 1
		m.dirty = true
	}
}

func (m *Map) IsUsed(bn common.Bnum) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.isSet(bn)
}

func (m *Map) NumFree() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.nfree
}

// Flush writes the bitmap back to its sectors if it changed.
func (m *Map) Flush() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.dirty {
		return
	}
	// On disk, bit n is bit n%8 of byte n/8.
	blks := make([]disk.Block, m.len)
	for i := range blks {
		blks[i] = make(disk.Block, common.SECTORSZ)
	}
	for n := uint64(0); n < m.max; n++ {
		if m.isSet(n) {
			i, j := n/common.NBITSECTOR, n%common.NBITSECTOR
			blks[i][j/8] |= 1 << (j % 8)
		}
	}
	m.dirty = false
	for i, blk := range blks {
		m.d.Write(m.start+uint64(i), blk)
	}
	util.DPrintf(5, "freemap: flushed %d sectors", m.len)
}
