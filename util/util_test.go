package util

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestMin(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(2), Min(2, 3))
	assert.Equal(uint64(2), Min(3, 2))
	assert.Equal(uint64(2), Min(2, 2))
	assert.Equal(uint64(3), Max(2, 3))
	assert.Equal(uint64(3), Max(3, 2))
}

func TestRoundUp(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(4), RoundUp(10, 3))
	assert.Equal(uint64(3), RoundUp(9, 3), "exact division")
	assert.Equal(uint64(0), RoundUp(0, 3))
	assert.Equal(uint64(2), RoundUp(600, 512), "600 bytes span two sectors")
	assert.Equal(uint64(1), RoundUp(512, 512))
	assert.Equal(uint64(5), RoundUp(512*4+1, 512), "round up by sz-1")
}

func TestSumOverflows(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(false, SumOverflows(1<<31, 1<<31))
	assert.Equal(false, SumOverflows(1<<64-2, 1))
	assert.Equal(false, SumOverflows(1, 1<<64-2))
	assert.Equal(false, SumOverflows(1<<32, 1<<32))

	assert.Equal(true, SumOverflows(1, 1<<64-1))
	assert.Equal(true, SumOverflows(1<<64-1, 1))
	assert.Equal(true, SumOverflows(2, 1<<64-1))
	assert.Equal(true, SumOverflows(1<<63, 1<<63))
}

func TestCloneByteSlice(t *testing.T) {
	b := []byte{1, 2, 3}
	c := CloneByteSlice(b)
	c[0] = 9
	assert.Equal(t, byte(1), b[0], "clone should not alias")
	assert.Equal(t, []byte{9, 2, 3}, c)
}

func TestDPrintf(t *testing.T) {
	assert := assert.New(t)
	hook := test.NewGlobal()
	defer SetLevel(0)

	SetLevel(1)
	DPrintf(1, "format: %d sectors\n", 512)
	if assert.NotNil(hook.LastEntry()) {
		assert.Equal("format: 512 sectors", hook.LastEntry().Message)
	}
	DPrintf(0, "mount")
	assert.Equal("mount", hook.LastEntry().Message)

	hook.Reset()
	DPrintf(2, "dropped")
	assert.Nil(hook.LastEntry())
}
