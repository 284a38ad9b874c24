package dir

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-filesys/common"
	"github.com/mit-pdos/go-filesys/disk"
	"github.com/mit-pdos/go-filesys/freemap"
	"github.com/mit-pdos/go-filesys/inode"
)

func mkRoot(t *testing.T, nsect uint64) (*inode.Icache, *Dir) {
	d := disk.NewMemDisk(nsect)
	fm := freemap.MkMap(d, common.FREEMAPSTART)
	fm.MarkUsed(common.ROOTSECTOR)
	for i := uint64(0); i < fm.Len(); i++ {
		fm.MarkUsed(fm.Start() + i)
	}
	ic := inode.MkIcache(d, fm)
	require.NoError(t, Create(ic, common.ROOTSECTOR, 16, common.ROOTSECTOR))
	root, err := OpenRoot(ic)
	require.NoError(t, err)
	return ic, root
}

func mkInode(t *testing.T, ic *inode.Icache, isDir bool, parent common.Bnum) common.Bnum {
	bn, ok := ic.FreeMap().AllocNum()
	require.True(t, ok)
	if isDir {
		require.NoError(t, Create(ic, bn, 4, parent))
	} else {
		require.NoError(t, ic.Create(bn, 0, false))
	}
	return bn
}

// names lists dp's entries through a fresh cursor.
func names(dp *Dir) []string {
	dp = dp.Reopen()
	defer dp.Close()
	var ns []string
	for {
		name, ok := dp.Readdir()
		if !ok {
			return ns
		}
		ns = append(ns, name)
	}
}

func TestEntryLayout(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(20), EntrySize)
	e := &Entry{Sector: 0x01020304, Name: "abcdefghijklmn", InUse: true}
	b := e.encode()
	assert.Len(b, int(EntrySize))
	assert.Equal([]byte{4, 3, 2, 1}, b[:4])
	assert.Equal(byte(0), b[18], "name is NUL-terminated")
	assert.Equal(byte(1), b[19])
	assert.Equal(e, decodeEntry(b))

	short := decodeEntry((&Entry{Sector: 9, Name: "a"}).encode())
	assert.Equal("a", short.Name)
	assert.False(short.InUse)
}

func TestReaddir(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 128)
	defer root.Close()

	assert.Equal([]string{".", ".."}, names(root))
	_, ok := root.Readdir()
	assert.True(ok)

	bn := mkInode(t, ic, false, 0)
	assert.NoError(root.Add("a", bn))
	assert.Equal([]string{".", "..", "a"}, names(root))
	dp := root.Reopen()
	for i := 0; i < 3; i++ {
		_, ok = dp.Readdir()
		assert.True(ok)
	}
	_, ok = dp.Readdir()
	assert.False(ok)
	_, ok = dp.Readdir()
	assert.False(ok, "cursor stays at the end")
	dp.Close()

	assert.NoError(root.Remove("a"))
	assert.Equal([]string{".", ".."}, names(root))

	sector, err := root.Lookup("..")
	assert.NoError(err)
	assert.Equal(common.ROOTSECTOR, sector, "root is its own parent")
}

func TestAddLookup(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 128)
	defer root.Close()
	s := mkInode(t, ic, false, 0)
	s2 := mkInode(t, ic, false, 0)

	assert.NoError(root.Add("a", s))
	got, err := root.Lookup("a")
	assert.NoError(err)
	assert.Equal(s, got)

	err = root.Add("a", s2)
	assert.True(errors.Is(err, ErrExists))
	got, _ = root.Lookup("a")
	assert.Equal(s, got, "first mapping intact")

	_, err = root.Lookup("b")
	assert.True(errors.Is(err, ErrNotFound))

	for _, bad := range []string{"", "abcdefghijklmno", "a/b", "a\x00"} {
		assert.True(errors.Is(root.Add(bad, s2), ErrInvalidName), "%q", bad)
	}
	assert.NoError(root.Add("abcdefghijklmn", s2), "NAMEMAX bytes")
}

func TestTombstoneReuse(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 128)
	defer root.Close()

	assert.NoError(root.Add("a", mkInode(t, ic, false, 0)))
	assert.NoError(root.Add("x", mkInode(t, ic, false, 0)))
	_, aoff, _ := root.lookup("a")
	assert.NoError(root.Remove("a"))

	s3 := mkInode(t, ic, false, 0)
	assert.NoError(root.Add("b", s3))
	_, boff, ok := root.lookup("b")
	assert.True(ok)
	assert.Equal(aoff, boff, "tombstone reused")

	_, err := root.Lookup("a")
	assert.True(errors.Is(err, ErrNotFound))
	got, err := root.Lookup("b")
	assert.NoError(err)
	assert.Equal(s3, got)
}

func TestGrowDir(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 256)
	defer root.Close()

	sub := mkInode(t, ic, true, root.Inode().Inumber())
	ip, err := ic.Open(sub)
	require.NoError(t, err)
	dp, err := Open(ip)
	require.NoError(t, err)
	defer dp.Close()
	assert.Equal(4*EntrySize, ip.Length())

	var want []string
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("f%d", i)
		assert.NoError(dp.Add(name, mkInode(t, ic, false, 0)))
		want = append(want, name)
	}
	assert.Equal(42*EntrySize, ip.Length())
	assert.Equal(append([]string{".", ".."}, want...), names(dp))
	got, err := dp.Lookup("..")
	assert.NoError(err)
	assert.Equal(root.Inode().Inumber(), got)
}

func TestOpenNotDir(t *testing.T) {
	ic, root := mkRoot(t, 64)
	defer root.Close()
	bn := mkInode(t, ic, false, 0)
	ip, err := ic.Open(bn)
	require.NoError(t, err)
	_, err = Open(ip)
	assert.True(t, errors.Is(err, ErrNotDir))
	assert.Equal(t, uint64(0), ip.OpenCount(), "reference dropped")
}

func TestRemoveGuards(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 256)
	defer root.Close()
	free := ic.FreeMap().NumFree()

	sub := mkInode(t, ic, true, root.Inode().Inumber())
	assert.NoError(root.Add("sub", sub))
	ip, err := ic.Open(sub)
	require.NoError(t, err)
	dp, err := Open(ip)
	require.NoError(t, err)
	assert.NoError(dp.Add("f", mkInode(t, ic, false, 0)))

	assert.True(errors.Is(root.Remove("sub"), ErrBusy), "open elsewhere")
	dp2 := dp.Reopen()
	dp.Close()
	assert.True(errors.Is(root.Remove("sub"), ErrBusy))
	assert.True(dp2.IsEmpty() == false)
	assert.NoError(dp2.Remove("f"))
	assert.True(dp2.IsEmpty())
	dp2.Close()

	ip, _ = ic.Open(sub)
	dp, _ = Open(ip)
	assert.NoError(dp.Add("g", mkInode(t, ic, false, 0)))
	dp.Close()
	assert.True(errors.Is(root.Remove("sub"), ErrNotEmpty))

	ip, _ = ic.Open(sub)
	dp, _ = Open(ip)
	assert.NoError(dp.Remove("g"))
	dp.Close()
	assert.NoError(root.Remove("sub"))
	_, err = root.Lookup("sub")
	assert.True(errors.Is(err, ErrNotFound))
	assert.Equal(free, ic.FreeMap().NumFree(), "sub and its files freed")

	for _, bad := range []string{"/", "/sub", ".", "..", ""} {
		assert.True(errors.Is(root.Remove(bad), ErrInvalidName), "%q", bad)
	}
	assert.True(errors.Is(root.Remove("nope"), ErrNotFound))
}

func TestRemoveOpenFile(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 128)
	defer root.Close()
	free := ic.FreeMap().NumFree()

	bn := mkInode(t, ic, false, 0)
	assert.NoError(root.Add("f", bn))
	ip, err := ic.Open(bn)
	require.NoError(t, err)
	_, err = ip.WriteAt([]byte("data"), 0)
	assert.NoError(err)

	assert.NoError(root.Remove("f"), "open files can be removed")
	assert.True(ip.IsRemoved())
	assert.True(ic.FreeMap().NumFree() < free)
	ip.Close()
	assert.Equal(free, ic.FreeMap().NumFree())
}

func TestIsEmptyCorrupt(t *testing.T) {
	_, root := mkRoot(t, 64)
	defer root.Close()
	bad := &Entry{Sector: 0, Name: "x", InUse: true}
	_, err := root.Inode().WriteAt(bad.encode(), 0)
	require.NoError(t, err)
	assert.Panics(t, func() { root.IsEmpty() })
}

func TestConcurrentAdd(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 512)
	defer root.Close()

	const nthread = 8
	const nname = 20
	var bns [nthread][nname]common.Bnum
	for i := range bns {
		for j := range bns[i] {
			bns[i][j] = mkInode(t, ic, false, 0)
		}
	}

	var mu sync.Mutex
	wins := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < nthread; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < nname; j++ {
				name := fmt.Sprintf("n%d", j)
				err := root.Add(name, bns[i][j])
				if err == nil {
					mu.Lock()
					wins[name]++
					mu.Unlock()
				} else {
					assert.True(errors.Is(err, ErrExists))
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Len(wins, nname)
	for name, n := range wins {
		assert.Equal(1, n, name)
	}
	assert.Len(names(root), nname+2)
}

func TestOpenEntryRacesRemove(t *testing.T) {
	assert := assert.New(t)
	ic, root := mkRoot(t, 256)
	defer root.Close()
	free := ic.FreeMap().NumFree()

	for i := 0; i < 100; i++ {
		bn := mkInode(t, ic, false, 0)
		require.NoError(t, root.Add("f", bn))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ip, err := root.OpenEntry("f")
			if err != nil {
				assert.True(errors.Is(err, ErrNotFound))
				return
			}
			assert.Equal(bn, ip.Inumber())
			assert.True(ic.FreeMap().IsUsed(bn), "held inode stays allocated")
			ip.Close()
		}()
		go func() {
			defer wg.Done()
			assert.NoError(root.Remove("f"))
		}()
		wg.Wait()

		_, err := ic.Open(bn)
		assert.True(errors.Is(err, inode.ErrCorrupt), "freed inode does not reopen")
	}
	assert.Equal(free, ic.FreeMap().NumFree())
	assert.Equal(uint64(1), ic.NOpen())
}
