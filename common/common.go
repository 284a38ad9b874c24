package common

// Sector geometry and on-disk constants shared by every layer.
const (
	SECTORSZ uint64 = 512
	PTRSZ    uint64 = 4 // on-disk size of a sector number

	NDIRECT   uint64 = 123               // # direct pointers in an inode
	NPTRBLK   uint64 = SECTORSZ / PTRSZ  // # sector numbers per index sector
	NINDIRECT uint64 = NPTRBLK           // sectors reachable via indirect
	NDINDIR   uint64 = NPTRBLK * NPTRBLK // sectors reachable via d_indirect

	// MAXSECTORS is the largest number of data sectors an inode can map.
	MAXSECTORS uint64 = NDIRECT + NINDIRECT + NDINDIR

	NBITSECTOR uint64 = SECTORSZ * 8 // bitmap bits per sector

	INODEMAGIC uint32 = 0x494e4f44

	NAMEMAX uint64 = 14
)

// Bnum is a sector number on the file system device.
type Bnum = uint64

const (
	ROOTSECTOR    Bnum = 0
	FREEMAPSTART  Bnum = 1
	noSectorValue      = ^uint32(0)
)

// MaxBnum is the largest sector number the on-disk format can address.
const MaxBnum Bnum = Bnum(noSectorValue) - 1

// MaxFileSize is the largest length an inode can have, in bytes.
func MaxFileSize() uint64 {
	return MAXSECTORS * SECTORSZ
}

// A Ptr is one slot of a pointer tier: either a mapped sector or nothing.
//
// The zero Ptr is unmapped, so sector 0 can never be mistaken for a hole.
type Ptr struct {
	bn     Bnum
	mapped bool
}

// Unmapped is the empty slot.
var Unmapped = Ptr{}

func MkPtr(bn Bnum) Ptr {
	if bn > MaxBnum {
		panic("MkPtr")
	}
	return Ptr{bn: bn, mapped: true}
}

// Get returns the sector a slot points at, and whether it points anywhere.
func (p Ptr) Get() (Bnum, bool) {
	return p.bn, p.mapped
}

func (p Ptr) IsMapped() bool {
	return p.mapped
}

// Encode converts p to its on-disk representation.
func (p Ptr) Encode() uint32 {
	if !p.mapped {
		return noSectorValue
	}
	return uint32(p.bn)
}

// DecodePtr is the inverse of Ptr.Encode.
func DecodePtr(v uint32) Ptr {
	if v == noSectorValue {
		return Unmapped
	}
	return Ptr{bn: Bnum(v), mapped: true}
}
