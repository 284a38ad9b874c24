// lockmap is a sharded lock map.
//
// The API is as if LockMap consisted of a lock for every possible uint64
// (block numbers, in practice); LockMap.Acquire(a) acquires the lock
// associated with a and LockMap.Release(a) releases it.
//
// Only locks that are held or waited on have state. The map is split into
// NSHARD shards, shard i tracking every a with a % NSHARD = i, so that
// acquiring different addresses rarely contends on the same mutex.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*lockState),
	}
}

func (shard *lockShard) acquire(addr uint64) {
	shard.mu.Lock()
	state, ok := shard.state[addr]
	if !ok {
		state = &lockState{cond: sync.NewCond(shard.mu)}
		shard.state[addr] = state
	}
	for state.held {
		state.waiters += 1
		state.cond.Wait()
		state.waiters -= 1
	}
	state.held = true
	shard.mu.Unlock()
}

func (shard *lockShard) release(addr uint64) {
	shard.mu.Lock()
	state, ok := shard.state[addr]
	if !ok || !state.held {
		panic("lockmap: release of unheld lock")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(shard.state, addr)
	}
	shard.mu.Unlock()
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	shards := make([]*lockShard, 0, NSHARD)
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(addr uint64) {
	lmap.shards[addr%NSHARD].acquire(addr)
}

func (lmap *LockMap) Release(addr uint64) {
	lmap.shards[addr%NSHARD].release(addr)
}
