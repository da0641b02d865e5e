package hub

import (
	"sync"
)

// GroupIndex maintains bidirectional membership between connections and
// named groups. Both directions are mutated under one lock, so a connection
// is in a group's member set iff the group is in the connection's group set
// at every observable point. Groups are ephemeral: created on first join,
// deleted the moment their member set empties.
type GroupIndex struct {
	mu         sync.RWMutex
	maxMembers int
	groups     map[string]map[string]struct{} // group → member ids
	byConn     map[string]map[string]struct{} // conn id → group names
}

func NewGroupIndex(maxMembers int) *GroupIndex {
	return &GroupIndex{
		maxMembers: maxMembers,
		groups:     make(map[string]map[string]struct{}),
		byConn:     make(map[string]map[string]struct{}),
	}
}

// Join adds connID to group. Idempotent: re-joining returns true without
// mutation. Returns false, with no mutation, when the group is at capacity.
func (g *GroupIndex) Join(connID, group string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.groups[group]
	if ok {
		if _, already := members[connID]; already {
			return true
		}
		if g.maxMembers > 0 && len(members) >= g.maxMembers {
			return false
		}
	} else {
		members = make(map[string]struct{})
		g.groups[group] = members
	}

	members[connID] = struct{}{}
	conns, ok := g.byConn[connID]
	if !ok {
		conns = make(map[string]struct{})
		g.byConn[connID] = conns
	}
	conns[group] = struct{}{}
	return true
}

// Leave removes connID from group on both sides, deleting the group record
// if it becomes empty.
func (g *GroupIndex) Leave(connID, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(connID, group)
}

func (g *GroupIndex) leaveLocked(connID, group string) {
	if members, ok := g.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.groups, group)
		}
	}
	if conns, ok := g.byConn[connID]; ok {
		delete(conns, group)
		if len(conns) == 0 {
			delete(g.byConn, connID)
		}
	}
}

// RemoveConn removes a connection from every group it belongs to. Called
// from Registry.Unregister on the teardown path.
func (g *GroupIndex) RemoveConn(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for group := range g.byConn[connID] {
		g.leaveLocked(connID, group)
	}
	delete(g.byConn, connID)
}

// Members returns a snapshot copy of a group's member set; fan-out iterates
// the snapshot unaffected by concurrent joins and leaves.
func (g *GroupIndex) Members(group string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	members, ok := g.groups[group]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// GroupsOf returns a snapshot of the groups a connection belongs to.
func (g *GroupIndex) GroupsOf(connID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conns, ok := g.byConn[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for group := range conns {
		out = append(out, group)
	}
	return out
}

// Size returns a group's member count, 0 when the group does not exist.
func (g *GroupIndex) Size(group string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups[group])
}

// GroupCount returns the number of live groups.
func (g *GroupIndex) GroupCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups)
}
