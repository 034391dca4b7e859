package raft

// AppendOutcome classifies the result of an append attempt against the Log.
type AppendOutcome int

const (
	// AppendSuccess means the entries (or the heartbeat) were applied.
	AppendSuccess AppendOutcome = iota
	// AppendSkip means the leader asked to append starting past the tail
	// (a gap the follower cannot bridge).
	AppendSkip
	// AppendEarlierTerm means the first incoming entry's term is behind
	// this log's own last term — the sender is a stale leader.
	AppendEarlierTerm
	// AppendMissingPrevious means the entry at prevCoords.Index does not
	// match prevCoords.Term (or does not exist).
	AppendMissingPrevious
)

func (o AppendOutcome) String() string {
	switch o {
	case AppendSuccess:
		return "success"
	case AppendSkip:
		return "skip"
	case AppendEarlierTerm:
		return "earlier-term"
	case AppendMissingPrevious:
		return "missing-previous"
	default:
		return "unknown"
	}
}

// AppendResult describes what happened when entries were appended to a Log.
type AppendResult struct {
	Outcome AppendOutcome
	// FirstIndex/LastIndex span the incoming entries' addressed range. Both
	// are EmptyCoords.Index (0) for a heartbeat (no entries) or a failed
	// append.
	FirstIndex Index
	LastIndex  Index
	// Replaced holds, in ascending order, the indices of entries that were
	// truncated away because of a term conflict.
	Replaced []Index
}

// Log is the ordered, persistent sequence of (term, entry) pairs that makes
// up one node's replicated log. Index 1 is the first entry; Index 0 (via
// EmptyCoords) denotes "before any entry".
type Log struct {
	entries     []LogEntry
	commitIndex Index
}

// NewLog returns an empty log with nothing committed.
func NewLog() *Log {
	return &Log{}
}

// LoadLog reconstructs a Log from previously persisted entries (used when
// rehydrating from internal/storage after a restart). Nothing is marked
// committed: the commit index is not itself persisted, and a restarted node
// re-learns it from the leader's next AppendEntries.
func LoadLog(entries []LogEntry) *Log {
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return &Log{entries: out}
}

// Entries returns a defensive copy of every entry currently in the log, in
// index order. Used by internal/storage to persist the full log.
func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// LatestAppended returns the coords of the last appended entry, or
// EmptyCoords if the log is empty.
func (l *Log) LatestAppended() LogCoords {
	if len(l.entries) == 0 {
		return EmptyCoords
	}
	idx := Index(len(l.entries))
	return LogCoords{Term: l.entries[idx-1].Term, Index: idx}
}

// LatestCommit returns the highest committed index (0 if nothing is
// committed).
func (l *Log) LatestCommit() Index {
	return l.commitIndex
}

// termForIndex returns the term stored at index, and whether index is in
// range.
func (l *Log) termForIndex(index Index) (Term, bool) {
	if index < 1 || int(index) > len(l.entries) {
		return 0, false
	}
	return l.entries[index-1].Term, true
}

// TermForIndex returns the term stored at index, and whether index is in
// range.
func (l *Log) TermForIndex(index Index) (Term, bool) {
	return l.termForIndex(index)
}

// CoordsForIndex returns the LogCoords at index, and whether index is in
// range.
func (l *Log) CoordsForIndex(index Index) (LogCoords, bool) {
	term, ok := l.termForIndex(index)
	if !ok {
		return LogCoords{}, false
	}
	return LogCoords{Term: term, Index: index}, true
}

// Contains reports whether the log has an entry exactly matching coords.
func (l *Log) Contains(coords LogCoords) bool {
	if coords.IsEmpty() {
		return true
	}
	term, ok := l.termForIndex(coords.Index)
	return ok && term == coords.Term
}

// EntriesFrom returns up to max contiguous entries starting at index. If
// index is out of range, it returns nil.
func (l *Log) EntriesFrom(index Index, max int) []LogEntry {
	if index < 1 || int(index) > len(l.entries) || max <= 0 {
		return nil
	}
	end := int(index) - 1 + max
	if end > len(l.entries) {
		end = len(l.entries)
	}
	out := make([]LogEntry, end-int(index)+1)
	copy(out, l.entries[index-1:end])
	return out
}

// Append applies an AppendEntries-style write to the log:
//
//   - an empty entries slice is a heartbeat and always succeeds;
//   - appending past the tail (prevCoords.Index > LatestAppended().Index)
//     is rejected as a gap (AppendSkip);
//   - a prevCoords that doesn't match what's on disk is AppendMissingPrevious;
//   - a first entry whose term is behind the log's own last term indicates
//     a stale leader (AppendEarlierTerm);
//   - otherwise, entries that conflict with what's already logged truncate
//     the tail from the conflict point on, and the incoming entries (from
//     the conflict point, or from the first genuinely new index) are
//     appended. Entries that already match what's on disk are left alone,
//     so applying the same AppendEntries twice is a no-op the second time.
func (l *Log) Append(prevCoords LogCoords, term Term, entries []LogEntry) AppendResult {
	if len(entries) == 0 {
		return AppendResult{Outcome: AppendSuccess}
	}

	latest := l.LatestAppended()
	if prevCoords.Index > latest.Index {
		return AppendResult{Outcome: AppendSkip}
	}
	if !prevCoords.IsEmpty() {
		t, ok := l.termForIndex(prevCoords.Index)
		if !ok || t != prevCoords.Term {
			return AppendResult{Outcome: AppendMissingPrevious}
		}
	}
	if entries[0].Term < latest.Term {
		return AppendResult{Outcome: AppendEarlierTerm}
	}

	target := prevCoords.Index + 1
	var replaced []Index
	conflictAt := -1
	for k, e := range entries {
		idx := target + Index(k)
		existingTerm, ok := l.termForIndex(idx)
		if !ok {
			// idx is past the current tail: everything from here on is new.
			conflictAt = k
			break
		}
		if existingTerm != e.Term {
			for i := idx; i <= latest.Index; i++ {
				replaced = append(replaced, i)
			}
			l.entries = l.entries[:idx-1]
			conflictAt = k
			break
		}
		// matching entry already on disk: nothing to do, move on.
	}
	if conflictAt >= 0 {
		l.entries = append(l.entries, entries[conflictAt:]...)
	}

	return AppendResult{
		Outcome:    AppendSuccess,
		FirstIndex: target,
		LastIndex:  target + Index(len(entries)) - 1,
		Replaced:   replaced,
	}
}

// AppendLocal appends entries generated locally (by a leader servicing a
// client write) at the current tail, stamped with term. It cannot fail: the
// caller owns the log and is always appending at the correct position.
func (l *Log) AppendLocal(term Term, entries []LogEntry) AppendResult {
	if len(entries) == 0 {
		return AppendResult{Outcome: AppendSuccess}
	}
	prev := l.LatestAppended()
	stamped := make([]LogEntry, len(entries))
	for i, e := range entries {
		stamped[i] = LogEntry{Term: term, Data: e.Data}
	}
	return l.Append(prev, term, stamped)
}

// Commit advances the commit watermark to min(upto, LatestAppended().Index)
// and returns the coords of entries newly committed, in index order. A
// request to commit at or below the current watermark is a no-op.
func (l *Log) Commit(upto Index) []LogCoords {
	target := upto
	if last := l.LatestAppended().Index; target > last {
		target = last
	}
	if target <= l.commitIndex {
		return nil
	}
	var newly []LogCoords
	for i := l.commitIndex + 1; i <= target; i++ {
		term, _ := l.termForIndex(i)
		newly = append(newly, LogCoords{Term: term, Index: i})
	}
	l.commitIndex = target
	return newly
}
