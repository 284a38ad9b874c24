package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-filesys/lockmap"
)

// SectorsPerBlock is how many sectors share one goose disk block.
const SectorsPerBlock uint64 = gdisk.BlockSize / SectorSize

var _ Disk = (*blockDisk)(nil)

// blockDisk exposes a 4096-byte goose block disk as a sector disk.
//
// A sector write is a read-modify-write of its block; the block lock makes
// concurrent writes to neighboring sectors safe.
type blockDisk struct {
	d     gdisk.Disk
	locks *lockmap.LockMap
}

// NewBlockDisk wraps a goose disk.
func NewBlockDisk(d gdisk.Disk) Disk {
	return &blockDisk{d: d, locks: lockmap.MkLockMap()}
}

// NewBlockMemDisk creates an in-memory goose disk with room for at least
// numSectors sectors.
func NewBlockMemDisk(numSectors uint64) Disk {
	nblk := (numSectors + SectorsPerBlock - 1) / SectorsPerBlock
	return NewBlockDisk(gdisk.NewMemDisk(nblk))
}

// NewBlockFileDisk opens a goose file disk with room for at least
// numSectors sectors.
func NewBlockFileDisk(path string, numSectors uint64) (Disk, error) {
	nblk := (numSectors + SectorsPerBlock - 1) / SectorsPerBlock
	d, err := gdisk.NewFileDisk(path, nblk)
	if err != nil {
		return nil, err
	}
	return NewBlockDisk(d), nil
}

func (bd *blockDisk) locate(a uint64) (uint64, uint64) {
	if a >= bd.Size() {
		panic(fmt.Errorf("out-of-bounds access at %v", a))
	}
	return a / SectorsPerBlock, (a % SectorsPerBlock) * SectorSize
}

func (bd *blockDisk) ReadTo(a uint64, buf Block) {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	blkno, off := bd.locate(a)
	bd.locks.Acquire(blkno)
	blk := bd.d.Read(blkno)
	bd.locks.Release(blkno)
	copy(buf, blk[off:off+SectorSize])
}

func (bd *blockDisk) Read(a uint64) Block {
	buf := make(Block, SectorSize)
	bd.ReadTo(a, buf)
	return buf
}

func (bd *blockDisk) Write(a uint64, v Block) {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	blkno, off := bd.locate(a)
	bd.locks.Acquire(blkno)
	blk := bd.d.Read(blkno)
	copy(blk[off:off+SectorSize], v)
	bd.d.Write(blkno, blk)
	bd.locks.Release(blkno)
}

func (bd *blockDisk) Size() uint64 {
	return bd.d.Size() * SectorsPerBlock
}

func (bd *blockDisk) Barrier() {
	bd.d.Barrier()
}

func (bd *blockDisk) Close() {
	bd.d.Close()
}
