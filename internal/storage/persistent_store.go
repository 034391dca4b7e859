// Package storage implements the filesystem persistence back-end the core
// raft package depends on but never touches directly: term/vote and log
// records are written as JSON (no wire format is mandated, so we pick the
// simplest encoding that round-trips cleanly) and read back on restart.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/raft"
)

// termRecord is the on-disk shape of a node's currentTerm plus every vote
// it has ever cast, keyed by term.
type termRecord struct {
	CurrentTerm raft.Term                `json:"current_term"`
	VotedFor    map[raft.Term]raft.NodeId `json:"voted_for"`
}

// WriteTerm persists currentTerm and votedFor to filename, atomically
// (write to a temp file, then rename).
func WriteTerm(filename string, currentTerm raft.Term, votedFor map[raft.Term]raft.NodeId) error {
	record := termRecord{CurrentTerm: currentTerm, VotedFor: votedFor}
	out, err := json.Marshal(record)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal term record")
		return err
	}
	if err := writeFileAtomic(filename, out); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("failed to write term file")
		return err
	}
	return nil
}

// ReadTerm loads a previously persisted PersistentState from filename. A
// missing file is not an error: it means this node has never run before,
// and ReadTerm returns a fresh PersistentState.
func ReadTerm(filename string) (*raft.PersistentState, error) {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return raft.NewPersistentState(), nil
	}
	if err != nil {
		log.Error().Err(err).Str("file", filename).Msg("failed to read term file")
		return nil, err
	}
	var record termRecord
	if err := json.Unmarshal(data, &record); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("failed to unmarshal term file")
		return nil, err
	}
	return raft.LoadPersistentState(record.CurrentTerm, record.VotedFor), nil
}

func writeFileAtomic(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}
