package filesys

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-filesys/dir"
)

// splitPath returns the directory components of path and its leaf name.
// Empty components from repeated separators are dropped. The leaf is ""
// when path names a directory itself: "/", "a/b/".
func splitPath(path string) ([]string, string) {
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	if len(comps) == 0 || strings.HasSuffix(path, "/") {
		return comps, ""
	}
	leaf := comps[len(comps)-1]
	if len(comps) == 1 {
		return nil, leaf
	}
	return comps[:len(comps)-1], leaf
}

// resolve walks every component of path but the leaf, starting at the root
// for absolute paths and at the current directory otherwise. It returns a
// fresh handle on the directory the leaf lives in, which the caller must
// close.
func (p *Proc) resolve(path string) (*dir.Dir, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("empty path: %w", dir.ErrNotFound)
	}
	var dp *dir.Dir
	if path[0] == '/' {
		root, err := dir.OpenRoot(p.fs.ic)
		if err != nil {
			return nil, "", err
		}
		dp = root
	} else {
		dp = p.cwd.Reopen()
	}
	comps, leaf := splitPath(path)
	for _, c := range comps {
		ip, err := dp.OpenEntry(c)
		dp.Close()
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		dp, err = dir.Open(ip)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
	}
	return dp, leaf, nil
}
