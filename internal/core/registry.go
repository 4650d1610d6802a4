package core

import (
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const registryShards = 32

type set map[string]struct{}

type shard struct {
	mu    sync.RWMutex
	index map[string]set
}

// joined maps a room to the identity the connection joined it under.
type joined map[string]string

type connShard struct {
	mu    sync.RWMutex
	index map[string]joined
}

// Membership is one room a connection was in and the identity it used there.
type Membership struct {
	Room     string
	Identity string
}

// Registry tracks which connections are members of which rooms.
//
// Room membership is sharded by room id. A second sharded index maps each
// connection to its rooms, with the identity each room was joined under, so
// that a leave or disconnect announces the same user the join did. Locks are
// always taken connection shard first, room shard second, and never two
// shards of the same kind at once.
type Registry struct {
	rooms [registryShards]shard
	conns [registryShards]connShard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range registryShards {
		r.rooms[i].index = make(map[string]set)
		r.conns[i].index = make(map[string]joined)
	}
	return r
}

func shardIndex(key string) uint64 {
	return xxhash.Sum64String(key) % registryShards
}

func (r *Registry) roomShard(room string) *shard {
	return &r.rooms[shardIndex(room)]
}

func (r *Registry) connShard(connID string) *connShard {
	return &r.conns[shardIndex(connID)]
}

func add(s *shard, key, member string) bool {
	members, ok := s.index[key]
	if !ok {
		members = make(set)
		s.index[key] = members
	}
	if _, exists := members[member]; exists {
		return false
	}
	members[member] = struct{}{}
	return true
}

func remove(s *shard, key, member string) bool {
	members, ok := s.index[key]
	if !ok {
		return false
	}
	if _, exists := members[member]; !exists {
		return false
	}
	delete(members, member)
	if len(members) == 0 {
		delete(s.index, key)
	}
	return true
}

// Join adds the connection to the room under identity. Returns true if newly
// added; a repeated join keeps the identity of the first one.
func (r *Registry) Join(connID, room, identity string) bool {
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rs := r.roomShard(room)
	rs.mu.Lock()
	added := add(rs, room, connID)
	rs.mu.Unlock()

	if added {
		rooms, ok := cs.index[connID]
		if !ok {
			rooms = make(joined)
			cs.index[connID] = rooms
		}
		rooms[room] = identity
	}
	return added
}

// Leave removes the connection from the room. It returns the identity the
// room was joined under and whether the connection was a member.
func (r *Registry) Leave(connID, room string) (string, bool) {
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rs := r.roomShard(room)
	rs.mu.Lock()
	removed := remove(rs, room, connID)
	rs.mu.Unlock()

	rooms := cs.index[connID]
	identity := rooms[room]
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(cs.index, connID)
	}
	if !removed {
		return "", false
	}
	return identity, true
}

// Drop removes the connection from every room and returns those memberships
// sorted by room.
func (r *Registry) Drop(connID string) []Membership {
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rooms := cs.index[connID]
	delete(cs.index, connID)

	left := make([]Membership, 0, len(rooms))
	for room, identity := range rooms {
		rs := r.roomShard(room)
		rs.mu.Lock()
		if remove(rs, room, connID) {
			left = append(left, Membership{Room: room, Identity: identity})
		}
		rs.mu.Unlock()
	}
	slices.SortFunc(left, func(a, b Membership) int { return strings.Compare(a.Room, b.Room) })
	return left
}

// Members returns a sorted snapshot of the room's connections.
func (r *Registry) Members(room string) []string {
	rs := r.roomShard(room)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return sortedKeys(rs.index[room])
}

// RoomsOf returns a sorted snapshot of the rooms the connection is in.
func (r *Registry) RoomsOf(connID string) []string {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return sortedKeys(cs.index[connID])
}

// IsMember reports whether the connection is currently in the room.
func (r *Registry) IsMember(connID, room string) bool {
	rs := r.roomShard(room)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.index[room][connID]
	return ok
}

// Rooms returns every non-empty room with its member count.
func (r *Registry) Rooms() map[string]int {
	out := make(map[string]int)
	for i := range registryShards {
		rs := &r.rooms[i]
		rs.mu.RLock()
		for room, members := range rs.index {
			out[room] = len(members)
		}
		rs.mu.RUnlock()
	}
	return out
}

func sortedKeys[V any](s map[string]V) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
