package server

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/rtpstats"
)

// peer is one browser-facing peer connection.
type peer struct {
	id    string
	pc    *webrtc.PeerConnection
	stats *rtpstats.Factory
}

// peerRegistry holds the live peers. It is the server's only shared state
// and is cleared by /reset.
type peerRegistry struct {
	mu    sync.Mutex
	peers map[string]*peer
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{peers: make(map[string]*peer)}
}

func (r *peerRegistry) add(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.id] = p
}

func (r *peerRegistry) get(id string) (*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

// remove drops the peer with id if it is still p. A reset may already have
// replaced or dropped it.
func (r *peerRegistry) remove(id string, p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[id]; ok && cur == p {
		delete(r.peers, id)
	}
}

func (r *peerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// closeAll closes and forgets every peer, returning how many there were.
func (r *peerRegistry) closeAll() int {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*peer)
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.pc.Close()
	}
	return len(peers)
}
