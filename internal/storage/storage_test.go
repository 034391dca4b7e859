package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlong/raftkv/internal/raft"
)

func TestTermRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "term")

	voted := map[raft.Term]raft.NodeId{1: "a", 2: "b"}
	require.NoError(t, WriteTerm(file, 2, voted))

	ps, err := ReadTerm(file)
	require.NoError(t, err)
	assert.Equal(t, raft.Term(2), ps.CurrentTerm())
	id, ok := ps.VotedFor(1)
	require.True(t, ok)
	assert.Equal(t, raft.NodeId("a"), id)
}

func TestReadTermMissingFileReturnsFreshState(t *testing.T) {
	dir := t.TempDir()
	ps, err := ReadTerm(filepath.Join(dir, "nonexistent"))
	require.NoError(t, err)
	assert.Equal(t, raft.Term(0), ps.CurrentTerm())
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "raftlog")

	entries := []raft.LogEntry{
		{Term: 1, Data: []byte("a")},
		{Term: 1, Data: []byte("b")},
		{Term: 2, Data: []byte("c")},
	}
	require.NoError(t, WriteLog(file, entries))

	got, err := ReadLog(file)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestReadLogMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadLog(filepath.Join(dir, "nonexistent"))
	require.NoError(t, err)
	assert.Nil(t, got)
}
