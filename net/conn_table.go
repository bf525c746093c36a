package net

import "sync"

// ConnTable maps server-side connection ids to engine peers and enforces the
// session's connection bound. The lock only covers map access; peer calls
// are always made outside it.
type ConnTable struct {
	mu       sync.RWMutex
	peers    map[ConnID]Peer
	rejected map[ConnID]struct{}
	max      int
}

// NewConnTable creates a table admitting at most maxConns peers.
func NewConnTable(maxConns int) *ConnTable {
	return &ConnTable{
		peers:    make(map[ConnID]Peer),
		rejected: make(map[ConnID]struct{}),
		max:      maxConns,
	}
}

// Admit inserts p unless the table is full or p's id is already present.
// A refused peer is told to disconnect and remembered so that its
// disconnect notification can be swallowed.
func (t *ConnTable) Admit(p Peer) bool {
	id := p.ID()

	t.mu.Lock()
	_, dup := t.peers[id]
	full := len(t.peers) >= t.max
	if !dup && !full {
		t.peers[id] = p
		t.mu.Unlock()
		return true
	}
	if !dup {
		t.rejected[id] = struct{}{}
	}
	t.mu.Unlock()

	p.Disconnect()
	return false
}

// TakeRejected reports whether id was refused by Admit and forgets it.
func (t *ConnTable) TakeRejected(id ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rejected[id]; ok {
		delete(t.rejected, id)
		return true
	}
	return false
}

// Get returns the peer for id.
func (t *ConnTable) Get(id ConnID) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p, ok
}

// Remove deletes id. Removing an unknown id is a no-op.
func (t *ConnTable) Remove(id ConnID) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if ok {
		delete(t.peers, id)
	}
	return p, ok
}

// Len returns the number of admitted peers.
func (t *ConnTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Max returns the connection bound.
func (t *ConnTable) Max() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.max
}

// SetMax changes the connection bound. Existing peers are kept.
func (t *ConnTable) SetMax(maxConns int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.max = maxConns
}

// Clear empties the table and returns the peers it held.
func (t *ConnTable) Clear() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	peers := make([]Peer, 0, len(t.peers))
	for id, p := range t.peers {
		peers = append(peers, p)
		delete(t.peers, id)
	}
	clear(t.rejected)
	return peers
}

// Send forwards payload to id. It fails if id is unknown or not connected.
func (t *ConnTable) Send(id ConnID, payload []byte, mode SendMode) bool {
	p, ok := t.Get(id)
	if !ok || p.State() != StateConnected {
		return false
	}
	return p.Send(payload, mode)
}

// Disconnect asks the peer for id to disconnect and removes it once the
// peer accepted the request.
func (t *ConnTable) Disconnect(id ConnID) bool {
	p, ok := t.Get(id)
	if !ok {
		return false
	}
	if !p.Disconnect() {
		return false
	}
	t.Remove(id)
	return true
}
