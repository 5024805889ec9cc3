package ws

import "sync"

// Pool is the ready-to-play matchmaking list. Membership is explicit: a user
// enters with mark_ready and leaves with mark_unready, by starting a game,
// or by disconnecting. Iteration order is insertion order, so players who
// have waited longest are listed first.
type Pool struct {
	mu      sync.Mutex
	order   []string
	members map[string]struct{}
}

func NewPool() *Pool {
	return &Pool{members: make(map[string]struct{})}
}

// Add marks userID ready. Returns false if they already were, in which case
// their position in the queue is unchanged.
func (p *Pool) Add(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.members[userID]; ok {
		return false
	}
	p.members[userID] = struct{}{}
	p.order = append(p.order, userID)
	return true
}

// Remove takes userID out of the pool. Returns false if they were not in it.
func (p *Pool) Remove(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.members[userID]; !ok {
		return false
	}
	delete(p.members, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether userID is in the pool.
func (p *Pool) Contains(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.members[userID]
	return ok
}

// ListExcluding returns the pool in insertion order, without excludeID. Each
// viewer sees the pool minus themselves.
func (p *Pool) ListExcluding(excludeID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if id != excludeID {
			result = append(result, id)
		}
	}
	return result
}

// Len returns the pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}
