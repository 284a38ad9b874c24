// buf holds in-memory images of device sectors
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/util"
)

// A Buf is a sector image, possibly modified since it was loaded
type Buf struct {
	Bn    common.Bnum
	Data  disk.Block
	dirty bool // has this sector been written to?
}

func MkBuf(bn common.Bnum, data disk.Block) *Buf {
	if uint64(len(data)) != common.SECTORSZ {
		panic("MkBuf")
	}
	b := &Buf{
		Bn:    bn,
		Data:  data,
		dirty: false,
	}
	return b
}

// MkBufLoad reads sector bn into a new buf
func MkBufLoad(d disk.Disk, bn common.Bnum) *Buf {
	return MkBuf(bn, d.Read(bn))
}

// MkIndexBuf makes an index sector for bn with every slot unmapped. The buf
// is dirty, since nothing on disk matches it yet.
func MkIndexBuf(bn common.Bnum) *Buf {
	b := MkBuf(bn, make(disk.Block, common.SECTORSZ))
	for i := uint64(0); i < common.NPTRBLK; i++ {
		b.PtrPut(i, common.Unmapped)
	}
	return b
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect writes buf to its sector and marks it clean
func (buf *Buf) WriteDirect(d disk.Disk) {
	util.DPrintf(10, "buf: write sector %d", buf.Bn)
	d.Write(buf.Bn, buf.Data)
	buf.dirty = false
}

// PtrGet returns slot i of an index sector
func (buf *Buf) PtrGet(i uint64) common.Ptr {
	off := i * common.PTRSZ
	dec := marshal.NewDec(buf.Data[off : off+common.PTRSZ])
	return common.DecodePtr(dec.GetInt32())
}

// PtrPut updates slot i of an index sector
func (buf *Buf) PtrPut(i uint64, p common.Ptr) {
	if i >= common.NPTRBLK {
		panic("PtrPut")
	}
	off := i * common.PTRSZ
	enc := marshal.NewEnc(common.PTRSZ)
	enc.PutInt32(p.Encode())
	copy(buf.Data[off:off+common.PTRSZ], enc.Finish())
	buf.SetDirty()
}
