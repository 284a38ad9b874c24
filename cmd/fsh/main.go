// Command fsh formats and manipulates a file system image.
//
//	fsh [flags] format
//	fsh [flags] mkdir PATH
//	fsh [flags] create PATH SIZE
//	fsh [flags] write PATH < data
//	fsh [flags] cat PATH
//	fsh [flags] ls [PATH]
//	fsh [flags] rm PATH
//	fsh [flags] stat PATH
//	fsh [flags] df
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/config"
	"github.com/mit-pdos/go-filesys/dir"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/filesys"
	"github.com/mit-pdos/go-filesys/util"
)

func openDisk(cfg *config.Config) (disk.Disk, error) {
	n := cfg.Sectors
	if cfg.Backend != config.BackendMem && !cfg.Format {
		if sz, err := disk.FileSectors(cfg.DiskPath); err == nil {
			n = sz
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	switch cfg.Backend {
	case config.BackendMem:
		return disk.NewMemDisk(n), nil
	case config.BackendBlock:
		return disk.NewBlockFileDisk(cfg.DiskPath, n)
	default:
		return disk.NewFileDisk(cfg.DiskPath, n)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"usage: fsh [flags] format|mkdir|create|write|cat|ls|rm|stat|df [args]\n")
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()
	cfgFile := flag.String("config", "", "YAML configuration file")
	diskPath := flag.String("disk", "", "disk image (overrides config)")
	backend := flag.String("backend", "", "mem, file or block (overrides config)")
	sectors := flag.Uint64("sectors", 0, "device size in sectors when formatting")
	debug := flag.Uint64("debug", 0, "debug level")
	flag.Usage = usage
	flag.Parse()

	if *cfgFile != "" {
		c, err := config.LoadFile(*cfgFile)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = c
	}
	if *diskPath != "" {
		cfg.DiskPath = *diskPath
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *sectors != 0 {
		cfg.Sectors = *sectors
	}
	if *debug != 0 {
		cfg.DebugLevel = *debug
	}
	util.SetLevel(cfg.DebugLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	if args[0] == "format" {
		cfg.Format = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	d, err := openDisk(cfg)
	if err != nil {
		log.Fatalf("open %s: %v", cfg.DiskPath, err)
	}
	var fs *filesys.FS
	if cfg.Format {
		fs, err = filesys.Format(d, cfg.RootDirEntries)
	} else {
		fs, err = filesys.Mount(d)
	}
	if err != nil {
		log.Fatalf("%s: %v", cfg.DiskPath, err)
	}
	p, err := fs.NewProc()
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = run(p, fs, args, os.Stdin, os.Stdout)
	p.Close()
	fs.Close()
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func needArgs(args []string, n int) error {
	if len(args) != n+1 {
		return fmt.Errorf("want %d arguments, got %d", n, len(args)-1)
	}
	return nil
}

func run(p *filesys.Proc, fs *filesys.FS, args []string, in io.Reader, out io.Writer) error {
	switch args[0] {
	case "format":
		return nil
	case "mkdir":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		return p.Mkdir(args[1])
	case "create":
		if err := needArgs(args, 2); err != nil {
			return err
		}
		size, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return err
		}
		return p.Create(args[1], size)
	case "write":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		return write(p, args[1], in)
	case "cat":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		return cat(p, args[1], out)
	case "ls":
		path := "."
		if len(args) > 1 {
			path = args[1]
		}
		return ls(p, path, out)
	case "rm":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		return p.Remove(args[1])
	case "stat":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		f, err := p.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		kind := "file"
		if f.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(out, "%s: %s inode %d length %d\n", args[1], kind, f.Inumber(), f.Length())
		return nil
	case "df":
		fmt.Fprintf(out, "%d sectors, %d free (%d bytes)\n",
			fs.Size(), fs.NumFree(), fs.NumFree()*common.SECTORSZ)
		return nil
	}
	return fmt.Errorf("unknown command")
}

// write copies in to path, creating the file if needed.
func write(p *filesys.Proc, path string, in io.Reader) error {
	f, err := p.Open(path)
	if errors.Is(err, dir.ErrNotFound) {
		if err = p.Create(path, 0); err == nil {
			f, err = p.Open(path)
		}
	}
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, 4*common.SECTORSZ)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func cat(p *filesys.Proc, path string, out io.Writer) error {
	f, err := p.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if f.IsDir() {
		return filesys.ErrIsDir
	}
	buf := make([]byte, 4*common.SECTORSZ)
	for {
		n := f.Read(buf)
		if n == 0 {
			return nil
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func ls(p *filesys.Proc, path string, out io.Writer) error {
	f, err := p.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if !f.IsDir() {
		fmt.Fprintln(out, path)
		return nil
	}
	for {
		name, ok := f.Readdir()
		if !ok {
			return nil
		}
		fmt.Fprintln(out, name)
	}
}
