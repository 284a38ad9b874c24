package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
)

// dinode is the on-disk inode, exactly one sector:
//
//	direct[123] | indirect | d_indirect | magic | length | is_dir
//
// each field a little-endian uint32.
type dinode struct {
	direct    [common.NDIRECT]common.Ptr
	indirect  common.Ptr
	dindirect common.Ptr
	magic     uint32
	length    uint64
	isDir     bool
}

func mkDinode(isDir bool) *dinode {
	// the zero Ptr is unmapped, so every tier starts empty
	return &dinode{
		magic: common.INODEMAGIC,
		isDir: isDir,
	}
}

func (di *dinode) String() string {
	return fmt.Sprintf("len %d dir %v ind %v dind %v", di.length, di.isDir,
		di.indirect.IsMapped(), di.dindirect.IsMapped())
}

func (di *dinode) encode() disk.Block {
	enc := marshal.NewEnc(common.SECTORSZ)
	for _, p := range di.direct {
		enc.PutInt32(p.Encode())
	}
	enc.PutInt32(di.indirect.Encode())
	enc.PutInt32(di.dindirect.Encode())
	enc.PutInt32(di.magic)
	enc.PutInt32(uint32(di.length))
	var isDir uint32
	if di.isDir {
		isDir = 1
	}
	enc.PutInt32(isDir)
	return enc.Finish()
}

func decode(blk disk.Block) *dinode {
	di := &dinode{}
	dec := marshal.NewDec(blk)
	for i := range di.direct {
		di.direct[i] = common.DecodePtr(dec.GetInt32())
	}
	di.indirect = common.DecodePtr(dec.GetInt32())
	di.dindirect = common.DecodePtr(dec.GetInt32())
	di.magic = dec.GetInt32()
	di.length = uint64(dec.GetInt32())
	di.isDir = dec.GetInt32() != 0
	return di
}
