// Package statemachine applies committed log entries to an in-memory
// key/value store, backed by an immutable radix tree so that a snapshot of
// the store (a single *iradix.Tree) can be read by concurrent callers while
// new entries keep applying — the same structure-sharing tree the teacher
// uses for its own database layer.
package statemachine

import (
	"encoding/json"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/rlong/raftkv/internal/raft"
)

// Op names the kind of mutation a Command applies.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "del"
)

// Command is the encoding internal/raft.LogEntry.Data carries for this
// state machine. internal/raft treats entry payloads as opaque bytes; this
// package owns the only code that interprets them.
type Command struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// EncodeSet and EncodeDelete build the []byte payload for a client write,
// for callers (internal/transport) that accept a key/value over HTTP and
// need to hand internal/raft a raft.AppendData.
func EncodeSet(key string, value []byte) []byte {
	out, _ := json.Marshal(Command{Op: OpSet, Key: key, Value: value})
	return out
}

func EncodeDelete(key string) []byte {
	out, _ := json.Marshal(Command{Op: OpDelete, Key: key})
	return out
}

// KV is the committed-entry apply target: an Observer that applies each
// OnEntryCommitted callback to an immutable radix tree.
type KV struct {
	mu   sync.Mutex
	tree *iradix.Tree

	// fetch resolves a committed LogCoords to the entry's raw payload. The
	// core's Log doesn't hand entries to observers directly (OnEntryCommitted
	// only carries coords, matching the pack's commit-callback shape), so the
	// owning host wires this to log.CoordsForIndex/EntriesFrom at construction.
	fetch func(index raft.Index) ([]byte, bool)

	raft.NopObserver
}

// NewKV returns an empty KV store. fetch resolves a log index to the raw
// entry payload committed at that index.
func NewKV(fetch func(index raft.Index) ([]byte, bool)) *KV {
	return &KV{tree: iradix.New(), fetch: fetch}
}

// OnEntryCommitted applies the command committed at coords.Index, implementing
// raft.Observer.
func (kv *KV) OnEntryCommitted(coords raft.LogCoords) {
	data, ok := kv.fetch(coords.Index)
	if !ok {
		return
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}
	kv.Apply(cmd)
}

// Apply applies cmd directly, bypassing the commit-index lookup. Exposed so
// tests can drive the state machine without wiring a full fetch callback.
func (kv *KV) Apply(cmd Command) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	switch cmd.Op {
	case OpSet:
		kv.tree, _, _ = kv.tree.Insert([]byte(cmd.Key), cmd.Value)
	case OpDelete:
		kv.tree, _, _ = kv.tree.Delete([]byte(cmd.Key))
	}
}

// Get returns the value stored at key, and whether it was present.
func (kv *KV) Get(key string) ([]byte, bool) {
	kv.mu.Lock()
	tree := kv.tree
	kv.mu.Unlock()
	v, ok := tree.Get([]byte(key))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Len returns the number of keys currently stored.
func (kv *KV) Len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.tree.Len()
}
