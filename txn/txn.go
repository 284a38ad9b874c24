// Package txn groups the sector allocations of one structural change to an
// inode (creation or growth).
//
// Every sector acquired through a Txn is zero-filled on disk before it is
// handed out, and every index sector the change touches is buffered in the
// Txn. Commit writes the buffered index sectors back; Abort writes nothing
// and returns every acquired sector to the free map, so a failed change
// leaks no sectors and leaves the inode's existing index sectors as they
// were.
package txn

import (
	"github.com/mit-pdos/go-filesys/buf"
	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/freemap"
	"github.com/mit-pdos/go-filesys/util"
)

type Txn struct {
	d        disk.Disk
	fm       *freemap.Map
	bufs     *buf.BufMap // index sectors read/written by this txn
	acquired []common.Bnum
	done     bool
}

func Begin(d disk.Disk, fm *freemap.Map) *Txn {
	return &Txn{
		d:        d,
		fm:       fm,
		bufs:     buf.MkBufMap(),
		acquired: make([]common.Bnum, 0),
	}
}

func (txn *Txn) zero(bn common.Bnum) {
	disk.ZeroSector(txn.d, bn)
}

// AllocRun allocates n zeroed sectors, contiguously if the free map has a
// long enough run, otherwise one at a time. It returns false if the device
// runs out; sectors obtained before that stay recorded for Abort.
func (txn *Txn) AllocRun(n uint64) ([]common.Bnum, bool) {
	if txn.done {
		panic("AllocRun: txn finished")
	}
	bns := make([]common.Bnum, 0, n)
	if n == 0 {
		return bns, true
	}
	start, ok := txn.fm.Allocate(n)
	if ok {
		for i := uint64(0); i < n; i++ {
			txn.acquired = append(txn.acquired, start+i)
			txn.zero(start + i)
			bns = append(bns, start+i)
		}
		return bns, true
	}
	util.DPrintf(5, "AllocRun: no run of %d, scattering", n)
	for uint64(len(bns)) < n {
		bn, ok := txn.fm.AllocNum()
		if !ok {
			return nil, false
		}
		txn.acquired = append(txn.acquired, bn)
		txn.zero(bn)
		bns = append(bns, bn)
	}
	return bns, true
}

// AllocIndex allocates a fresh index sector with every slot unmapped.
func (txn *Txn) AllocIndex() (*buf.Buf, bool) {
	bns, ok := txn.AllocRun(1)
	if !ok {
		return nil, false
	}
	b := buf.MkIndexBuf(bns[0])
	txn.bufs.Insert(b)
	return b, true
}

// ReadBuf returns the txn's image of an existing index sector, loading it
// on first use.
func (txn *Txn) ReadBuf(bn common.Bnum) *buf.Buf {
	b := txn.bufs.Lookup(bn)
	if b == nil {
		b = buf.MkBufLoad(txn.d, bn)
		txn.bufs.Insert(b)
	}
	return b
}

// NAcquired reports how many sectors the txn has allocated so far.
func (txn *Txn) NAcquired() uint64 {
	return uint64(len(txn.acquired))
}

// Commit writes the dirty index sectors and persists the free map.
func (txn *Txn) Commit() {
	if txn.done {
		panic("Commit: txn finished")
	}
	txn.done = true
	bufs := txn.bufs.DirtyBufs()
	for _, b := range bufs {
		b.WriteDirect(txn.d)
	}
	txn.fm.Flush()
	util.DPrintf(3, "Commit: %d sectors allocated, %d index sectors written",
		len(txn.acquired), len(bufs))
}

// Abort releases every sector the txn allocated.
func (txn *Txn) Abort() {
	if txn.done {
		panic("Abort: txn finished")
	}
	txn.done = true
	for _, bn := range txn.acquired {
		txn.fm.Release(bn, 1)
	}
	util.DPrintf(3, "Abort: released %d sectors", len(txn.acquired))
	txn.acquired = nil
}
