package storage

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/raft"
)

// logRecord is the on-disk shape of one raft.LogEntry.
type logRecord struct {
	Term raft.Term `json:"term"`
	Data []byte    `json:"data"`
}

// WriteLog persists the full set of log entries to filename, atomically.
// internal/raft.Log does not expose its entries for partial/incremental
// writes, so every call writes the whole log; that matches the teacher's
// own WriteLogs, which re-serializes the complete LogStore on every write.
func WriteLog(filename string, entries []raft.LogEntry) error {
	records := make([]logRecord, len(entries))
	for i, e := range entries {
		records[i] = logRecord{Term: e.Term, Data: e.Data}
	}
	out, err := json.Marshal(records)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal log entries")
		return err
	}
	if err := writeFileAtomic(filename, out); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("failed to write log file")
		return err
	}
	return nil
}

// ReadLog loads previously persisted log entries from filename. A missing
// file means an empty log, not an error.
func ReadLog(filename string) ([]raft.LogEntry, error) {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("file", filename).Msg("failed to read log file")
		return nil, err
	}
	var records []logRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("failed to unmarshal log file")
		return nil, err
	}
	entries := make([]raft.LogEntry, len(records))
	for i, r := range records {
		entries[i] = raft.LogEntry{Term: r.Term, Data: r.Data}
	}
	return entries, nil
}
