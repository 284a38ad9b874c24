package filesys

import (
	"fmt"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/dir"
	"github.com/mit-pdos/go-filesys/util"
)

// A Proc is the file system state of one process: its current directory.
// Relative paths resolve against it.
type Proc struct {
	fs  *FS
	cwd *dir.Dir
}

// NewProc starts a process in the root directory.
func (fs *FS) NewProc() (*Proc, error) {
	root, err := dir.OpenRoot(fs.ic)
	if err != nil {
		return nil, err
	}
	return &Proc{fs: fs, cwd: root}, nil
}

// Fork returns a child process sharing p's current directory.
func (p *Proc) Fork() *Proc {
	return &Proc{fs: p.fs, cwd: p.cwd.Reopen()}
}

func (p *Proc) Close() {
	p.cwd.Close()
	p.cwd = nil
}

// Cwd is the inode number of the current directory.
func (p *Proc) Cwd() common.Bnum {
	return p.cwd.Inode().Inumber()
}

// Create makes a regular file of size zero-filled bytes.
func (p *Proc) Create(path string, size uint64) error {
	dp, leaf, err := p.resolve(path)
	if err != nil {
		return err
	}
	defer dp.Close()
	if leaf == "" {
		return fmt.Errorf("create %q: %w", path, dir.ErrExists)
	}
	return p.fs.create(dp, leaf, size, false)
}

// Mkdir makes an empty directory.
func (p *Proc) Mkdir(path string) error {
	dp, leaf, err := p.resolve(path)
	if err != nil {
		return err
	}
	defer dp.Close()
	if leaf == "" {
		return fmt.Errorf("mkdir %q: %w", path, dir.ErrExists)
	}
	return p.fs.create(dp, leaf, 0, true)
}

// Open returns a handle on the file or directory at path.
func (p *Proc) Open(path string) (*File, error) {
	dp, leaf, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	if leaf == "" {
		// the path names dp itself
		ip := dp.Inode().Reopen()
		dp.Close()
		return mkFile(ip), nil
	}
	defer dp.Close()
	ip, err := dp.OpenEntry(leaf)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return mkFile(ip), nil
}

// Remove unlinks path. A file's sectors are freed once its last handle is
// closed; a directory must be empty and not open elsewhere, including as
// some process's current directory.
func (p *Proc) Remove(path string) error {
	dp, leaf, err := p.resolve(path)
	if err != nil {
		return err
	}
	defer dp.Close()
	if leaf == "" {
		return fmt.Errorf("remove %q: %w", path, dir.ErrInvalidName)
	}
	if err := dp.Remove(leaf); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}

// Chdir makes path the current directory.
func (p *Proc) Chdir(path string) error {
	dp, leaf, err := p.resolve(path)
	if err != nil {
		return err
	}
	if leaf != "" {
		ip, err := dp.OpenEntry(leaf)
		dp.Close()
		if err != nil {
			return fmt.Errorf("chdir %q: %w", path, err)
		}
		dp, err = dir.Open(ip)
		if err != nil {
			return fmt.Errorf("chdir %q: %w", path, err)
		}
	}
	p.cwd.Close()
	p.cwd = dp
	util.DPrintf(5, "chdir: %q -> %d", path, dp.Inode().Inumber())
	return nil
}
