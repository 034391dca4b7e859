package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlong/raftkv/internal/raft"
)

func TestKV_ApplySetAndGet(t *testing.T) {
	kv := NewKV(nil)
	kv.Apply(Command{Op: OpSet, Key: "a", Value: []byte("1")})

	v, ok := kv.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 1, kv.Len())
}

func TestKV_ApplyDeleteRemovesKey(t *testing.T) {
	kv := NewKV(nil)
	kv.Apply(Command{Op: OpSet, Key: "a", Value: []byte("1")})
	kv.Apply(Command{Op: OpDelete, Key: "a"})

	_, ok := kv.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, kv.Len())
}

func TestKV_OnEntryCommittedFetchesAndApplies(t *testing.T) {
	payload := EncodeSet("k", []byte("v"))
	kv := NewKV(func(index raft.Index) ([]byte, bool) {
		if index == 3 {
			return payload, true
		}
		return nil, false
	})

	kv.OnEntryCommitted(raft.LogCoords{Term: 1, Index: 3})
	v, ok := kv.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestKV_OnEntryCommittedMissingIndexIsNoOp(t *testing.T) {
	kv := NewKV(func(raft.Index) ([]byte, bool) { return nil, false })
	assert.NotPanics(t, func() {
		kv.OnEntryCommitted(raft.LogCoords{Term: 1, Index: 9})
	})
	assert.Equal(t, 0, kv.Len())
}
