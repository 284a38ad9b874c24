package dir

import (
	"bytes"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-filesys/common"
)

// EntrySize is the on-disk size of a directory entry:
//
//	inode_sector (uint32) | name[NAMEMAX+1] | in_use (byte)
const EntrySize uint64 = 4 + common.NAMEMAX + 1 + 1

const nameOff = 4
const inUseOff = nameOff + common.NAMEMAX + 1

type Entry struct {
	Sector common.Bnum
	Name   string
	InUse  bool
}

func (e *Entry) encode() []byte {
	enc := marshal.NewEnc(EntrySize)
	enc.PutInt32(uint32(e.Sector))
	b := enc.Finish()
	copy(b[nameOff:inUseOff-1], e.Name)
	if e.InUse {
		b[inUseOff] = 1
	}
	return b
}

func decodeEntry(b []byte) *Entry {
	dec := marshal.NewDec(b)
	e := &Entry{Sector: common.Bnum(dec.GetInt32())}
	name := b[nameOff:inUseOff]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	e.Name = string(name)
	e.InUse = b[inUseOff] != 0
	return e
}

func validName(name string) bool {
	if name == "" || uint64(len(name)) > common.NAMEMAX {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
