package raft

import "fmt"

// Safety violations are programmer errors, not recoverable conditions: a
// node that hits one has a bug, not a retry-able failure. They abort the
// node via panic rather than being threaded through Result.

func panicTwoLeadersSameTerm(term Term, self, other NodeId) {
	panic(fmt.Sprintf("raft: safety violation: %s received AppendEntries from %s while already Leader at term %d", self, other, term))
}
