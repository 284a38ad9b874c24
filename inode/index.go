package inode

import (
	"github.com/mit-pdos/go-filesys/buf"
	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/txn"
	"github.com/mit-pdos/go-filesys/util"
)

// Block index i of a file lives in one of three tiers:
//
//	[0, NDIRECT)                          di.direct[i]
//	[NDIRECT, NDIRECT+NINDIRECT)          slot i-NDIRECT of di.indirect
//	[NDIRECT+NINDIRECT, MAXSECTORS)       slot (j%NPTRBLK) of the index
//	                                      sector in slot (j/NPTRBLK) of
//	                                      di.dindirect, j = i-NDIRECT-NINDIRECT
//
// Tiers fill left to right: if block index i is mapped so is every index
// below it.

const indBase = common.NDIRECT
const dindBase = common.NDIRECT + common.NINDIRECT

// bmap returns the sector holding block index i of di.
func bmap(d disk.Disk, di *dinode, i uint64) common.Ptr {
	if i < indBase {
		return di.direct[i]
	}
	if i < dindBase {
		bn, ok := di.indirect.Get()
		if !ok {
			return common.Unmapped
		}
		return buf.MkBufLoad(d, bn).PtrGet(i - indBase)
	}
	if i < common.MAXSECTORS {
		j := i - dindBase
		bn, ok := di.dindirect.Get()
		if !ok {
			return common.Unmapped
		}
		bn, ok = buf.MkBufLoad(d, bn).PtrGet(j / common.NPTRBLK).Get()
		if !ok {
			return common.Unmapped
		}
		return buf.MkBufLoad(d, bn).PtrGet(j % common.NPTRBLK)
	}
	return common.Unmapped
}

// sectorFor returns the sector holding byte pos of di, or Unmapped if pos is
// past the end of the file.
func sectorFor(d disk.Disk, di *dinode, pos uint64) common.Ptr {
	if pos >= di.length {
		return common.Unmapped
	}
	return bmap(d, di, pos/common.SECTORSZ)
}

// growIndirect fills n slots of the index sector *p, starting at slot off,
// with newly allocated data sectors. An unmapped *p gets a fresh index
// sector, which is only legal when appending from its first slot.
func growIndirect(tx *txn.Txn, p *common.Ptr, off uint64, n uint64) bool {
	var ib *buf.Buf
	if bn, ok := p.Get(); ok {
		ib = tx.ReadBuf(bn)
	} else {
		if off != 0 {
			panic("growIndirect: gap in tier")
		}
		var ok bool
		ib, ok = tx.AllocIndex()
		if !ok {
			return false
		}
		*p = common.MkPtr(ib.Bn)
	}
	bns, ok := tx.AllocRun(n)
	if !ok {
		return false
	}
	for k, bn := range bns {
		slot := off + uint64(k)
		if ib.PtrGet(slot).IsMapped() {
			panic("growIndirect: slot already mapped")
		}
		ib.PtrPut(slot, common.MkPtr(bn))
	}
	return true
}

// grow maps block indexes [have, want) of di to newly allocated sectors,
// topping up each tier in order. Pointers below have are left untouched.
// On failure di may be partially updated; the caller discards it and
// aborts tx.
func grow(tx *txn.Txn, di *dinode, have uint64, want uint64) bool {
	if want > common.MAXSECTORS {
		panic("grow")
	}
	util.DPrintf(3, "grow: %d -> %d sectors", have, want)

	if have < indBase && have < want {
		n := util.Min(want, indBase) - have
		bns, ok := tx.AllocRun(n)
		if !ok {
			return false
		}
		for k, bn := range bns {
			i := have + uint64(k)
			if di.direct[i].IsMapped() {
				panic("grow: direct slot already mapped")
			}
			di.direct[i] = common.MkPtr(bn)
		}
		have += n
	}

	if have < dindBase && have < want {
		n := util.Min(want, dindBase) - have
		if !growIndirect(tx, &di.indirect, have-indBase, n) {
			return false
		}
		have += n
	}

	if have >= want {
		return true
	}

	var top *buf.Buf
	if bn, ok := di.dindirect.Get(); ok {
		top = tx.ReadBuf(bn)
	} else {
		if have != dindBase {
			panic("grow: gap before double-indirect tier")
		}
		top, ok = tx.AllocIndex()
		if !ok {
			return false
		}
		di.dindirect = common.MkPtr(top.Bn)
	}
	rel := have - dindBase
	end := want - dindBase
	for rel < end {
		slot := rel / common.NPTRBLK
		n := util.Min(end, (slot+1)*common.NPTRBLK) - rel
		p := top.PtrGet(slot)
		if !growIndirect(tx, &p, rel%common.NPTRBLK, n) {
			return false
		}
		top.PtrPut(slot, p)
		rel += n
	}
	return true
}

// owned lists every sector di owns: data sectors, then index sectors. Each
// tier is walked up to its first unmapped slot, and the number of data
// sectors found must match the length; anything else means a tier has a
// gap.
func owned(d disk.Disk, di *dinode) []common.Bnum {
	data := make([]common.Bnum, 0)
	index := make([]common.Bnum, 0)

	walk := func(ib *buf.Buf) bool {
		for i := uint64(0); i < common.NPTRBLK; i++ {
			bn, ok := ib.PtrGet(i).Get()
			if !ok {
				return false
			}
			data = append(data, bn)
		}
		return true
	}

	done := false
	for _, p := range di.direct {
		bn, ok := p.Get()
		if !ok {
			done = true
			break
		}
		data = append(data, bn)
	}
	if !done {
		if bn, ok := di.indirect.Get(); ok {
			index = append(index, bn)
			done = !walk(buf.MkBufLoad(d, bn))
		} else {
			done = true
		}
	}
	if !done {
		if bn, ok := di.dindirect.Get(); ok {
			index = append(index, bn)
			top := buf.MkBufLoad(d, bn)
			for i := uint64(0); i < common.NPTRBLK && !done; i++ {
				bn, ok := top.PtrGet(i).Get()
				if !ok {
					break
				}
				index = append(index, bn)
				done = !walk(buf.MkBufLoad(d, bn))
			}
		}
	}

	if uint64(len(data)) != util.RoundUp(di.length, common.SECTORSZ) {
		panic("owned: tier has a gap")
	}
	return append(data, index...)
}
