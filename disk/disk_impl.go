package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var _ Disk = fileDisk{}

type fileDisk struct {
	fd         int
	numSectors uint64
}

// NewFileDisk opens (creating if needed) a disk image at path holding
// numSectors sectors.
func NewFileDisk(path string, numSectors uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG &&
		uint64(stat.Size) != numSectors*SectorSize {
		err = unix.Ftruncate(fd, int64(numSectors*SectorSize))
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return fileDisk{fd, numSectors}, nil
}

// FileSectors reports how many whole sectors the image at path holds.
func FileSectors(path string) (uint64, error) {
	var stat unix.Stat_t
	err := unix.Stat(path, &stat)
	if err != nil {
		return 0, err
	}
	return uint64(stat.Size) / SectorSize, nil
}

func (d fileDisk) ReadTo(a uint64, buf Block) {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	if a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	_, err := unix.Pread(d.fd, buf, int64(a*SectorSize))
	if err != nil {
		panic("read failed: " + err.Error())
	}
}

func (d fileDisk) Read(a uint64) Block {
	buf := make([]byte, SectorSize)
	d.ReadTo(a, buf)
	return buf
}

func (d fileDisk) Write(a uint64, v Block) {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector sized (%d bytes)", len(v)))
	}
	if a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*SectorSize))
	if err != nil {
		panic("write failed: " + err.Error())
	}
}

func (d fileDisk) Size() uint64 {
	return d.numSectors
}

func (d fileDisk) Barrier() {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl with F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		panic("file sync failed: " + err.Error())
	}
}

func (d fileDisk) Close() {
	err := unix.Close(d.fd)
	if err != nil {
		panic(err)
	}
}

var _ Disk = memDisk{}

type memDisk struct {
	l       *sync.RWMutex
	sectors [][SectorSize]byte
}

func NewMemDisk(numSectors uint64) Disk {
	sectors := make([][SectorSize]byte, numSectors)
	return memDisk{l: new(sync.RWMutex), sectors: sectors}
}

func (d memDisk) ReadTo(a uint64, buf Block) {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	copy(buf, d.sectors[a][:])
}

func (d memDisk) Read(a uint64) Block {
	buf := make(Block, SectorSize)
	d.ReadTo(a, buf)
	return buf
}

func (d memDisk) Write(a uint64, v Block) {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	copy(d.sectors[a][:], v)
}

func (d memDisk) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.sectors))
}

func (d memDisk) Barrier() {}

func (d memDisk) Close() {}
