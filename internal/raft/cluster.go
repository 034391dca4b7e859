package raft

// ClusterView is the set of peer NodeIds in a cluster, excluding the local
// node itself. It is the orchestrator's sole source of membership
// information — who to send RequestVote/AppendEntries to, and how big a
// majority has to be.
type ClusterView struct {
	peers []NodeId
}

// NewClusterView builds a ClusterView from a list of peer ids. Duplicates
// are collapsed; order of Peers() follows first occurrence.
func NewClusterView(peers ...NodeId) ClusterView {
	seen := make(map[NodeId]struct{}, len(peers))
	out := make([]NodeId, 0, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return ClusterView{peers: out}
}

// Peers returns the peer ids, excluding self.
func (c ClusterView) Peers() []NodeId {
	out := make([]NodeId, len(c.peers))
	copy(out, c.peers)
	return out
}

// PeerCount returns the number of peers (cluster size minus self).
func (c ClusterView) PeerCount() int {
	return len(c.peers)
}

// Size returns the total cluster size, including self.
func (c ClusterView) Size() int {
	return len(c.peers) + 1
}

// Majority returns the number of votes (including self) needed for a
// strict majority of Size().
func (c ClusterView) Majority() int {
	return c.Size()/2 + 1
}

// Contains reports whether id is a known peer.
func (c ClusterView) Contains(id NodeId) bool {
	for _, p := range c.peers {
		if p == id {
			return true
		}
	}
	return false
}
