package chat

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Presence is the set of identities active in a chat. It is driven by explicit
// join and leave signals; a disconnect removes the identity whatever the number
// of joins before it. Snapshots list identities in the order they joined.
type Presence struct {
	mu     sync.Mutex
	online map[Identity]uint64
	seq    uint64
}

// NewPresence creates an empty presence set.
func NewPresence() *Presence {
	return &Presence{online: make(map[Identity]uint64)}
}

// Join adds identity and returns the resulting snapshot.
func (p *Presence) Join(identity Identity) []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[identity]; !ok {
		p.seq++
		p.online[identity] = p.seq
	}
	return p.snapshotLocked()
}

// Leave removes identity and returns the resulting snapshot.
func (p *Presence) Leave(identity Identity) []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, identity)
	return p.snapshotLocked()
}

// OnDisconnect removes identity unconditionally and returns the resulting
// snapshot. Calling it again for the same identity changes nothing.
func (p *Presence) OnDisconnect(identity Identity) []Identity {
	return p.Leave(identity)
}

// Snapshot returns the current presence set.
func (p *Presence) Snapshot() []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Contains reports whether identity is present.
func (p *Presence) Contains(identity Identity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[identity]
	return ok
}

func (p *Presence) snapshotLocked() []Identity {
	snapshot := lo.Keys(p.online)
	slices.SortFunc(snapshot, func(a, b Identity) int {
		return cmp.Compare(p.online[a], p.online[b])
	})
	return snapshot
}
