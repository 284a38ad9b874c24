package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeometry(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(128), NPTRBLK)
	assert.Equal(uint64(123+128+128*128), MAXSECTORS)
	assert.Equal(uint64(16635*512), MaxFileSize())
}

func TestPtr(t *testing.T) {
	assert := assert.New(t)

	_, ok := Unmapped.Get()
	assert.False(ok, "zero Ptr is unmapped")

	p := MkPtr(0)
	bn, ok := p.Get()
	assert.True(ok, "sector 0 is a real sector")
	assert.Equal(Bnum(0), bn)

	assert.Equal(p, DecodePtr(p.Encode()))
	assert.Equal(Unmapped, DecodePtr(Unmapped.Encode()))
	assert.Equal(MkPtr(MaxBnum), DecodePtr(MkPtr(MaxBnum).Encode()))
	assert.Panics(func() { MkPtr(MaxBnum + 1) })
}
