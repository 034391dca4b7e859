package raft

// RoleChangeEvent describes a transition to a distinct role: it is emitted
// on every transition where the new role differs from the old one.
type RoleChangeEvent struct {
	Term Term
	Old  Role
	New  Role
}

// Observer receives fire-and-forget notifications from the orchestrator at
// well-defined points: role change, new leader observed, entry committed.
// The core invokes these synchronously from within OnMessage;
// implementations must not call back into the Node that invoked them.
type Observer interface {
	OnRoleChange(RoleChangeEvent)
	OnNewLeader(NodeId)
	OnEntryCommitted(LogCoords)
}

// NopObserver implements Observer with no-op methods. Embed it to satisfy
// Observer while overriding only the callbacks you care about.
type NopObserver struct{}

func (NopObserver) OnRoleChange(RoleChangeEvent) {}
func (NopObserver) OnNewLeader(NodeId)           {}
func (NopObserver) OnEntryCommitted(LogCoords)   {}

// multiObserver fans a single call out to several observers in order.
type multiObserver struct {
	observers []Observer
}

// MultiObserver combines several observers into one, invoked in order.
func MultiObserver(observers ...Observer) Observer {
	return &multiObserver{observers: observers}
}

func (m *multiObserver) OnRoleChange(e RoleChangeEvent) {
	for _, o := range m.observers {
		o.OnRoleChange(e)
	}
}

func (m *multiObserver) OnNewLeader(id NodeId) {
	for _, o := range m.observers {
		o.OnNewLeader(id)
	}
}

func (m *multiObserver) OnEntryCommitted(c LogCoords) {
	for _, o := range m.observers {
		o.OnEntryCommitted(c)
	}
}
