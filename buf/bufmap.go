package buf

import (
	"sort"

	"github.com/mit-pdos/go-filesys/common"
)

//
// A map from sector numbers to bufs.
//

type BufMap struct {
	bufs map[common.Bnum]*Buf
}

func MkBufMap() *BufMap {
	a := &BufMap{
		bufs: make(map[common.Bnum]*Buf),
	}
	return a
}

func (bmap *BufMap) Insert(buf *Buf) {
	bmap.bufs[buf.Bn] = buf
}

func (bmap *BufMap) Lookup(bn common.Bnum) *Buf {
	return bmap.bufs[bn]
}

func (bmap *BufMap) Del(bn common.Bnum) {
	delete(bmap.bufs, bn)
}

func (bmap *BufMap) Ndirty() uint64 {
	n := uint64(0)
	for _, buf := range bmap.bufs {
		if buf.dirty {
			n += 1
		}
	}
	return n
}

// DirtyBufs returns the dirty bufs in sector order
func (bmap *BufMap) DirtyBufs() []*Buf {
	bufs := make([]*Buf, 0)
	for _, b := range bmap.bufs {
		if b.dirty {
			bufs = append(bufs, b)
		}
	}
	sort.Slice(bufs, func(i, j int) bool { return bufs[i].Bn < bufs[j].Bn })
	return bufs
}
