package disk

import (
	"github.com/mit-pdos/go-filesys/common"
)

// Block is a SectorSize-byte buffer
type Block = []byte

const SectorSize uint64 = common.SECTORSZ

// Disk provides access to a sector-addressed block device
type Disk interface {
	// Read reads a sector by address
	//
	// Expects a < Size().
	Read(a uint64) Block

	// ReadTo reads the sector at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block)

	// Write updates a sector by address
	//
	// Expects a < Size().
	Write(a uint64, v Block)

	// Size reports how big the disk is, in sectors
	Size() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier()

	// Close releases any resources used by the disk and makes it unusable.
	Close()
}

// ZeroSector writes a sector of zeros at a.
func ZeroSector(d Disk, a uint64) {
	d.Write(a, make(Block, SectorSize))
}
