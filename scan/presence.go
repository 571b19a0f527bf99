package scan

import (
	"sync"
	"time"
)

// presence remembers which tags are in the field so each one is scanned
// once per presentation. A tag that has not been seen for the removal
// timeout counts as removed, and scanning it again later is a new
// presentation.
type presence struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	timeout  time.Duration
}

func newPresence(timeout time.Duration) *presence {
	return &presence{lastSeen: make(map[string]time.Time), timeout: timeout}
}

// Seen records the tag at now and reports whether it is a new presentation.
func (p *presence) Seen(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[id]
	p.lastSeen[id] = now
	return !ok || now.Sub(last) >= p.timeout
}

// Touch refreshes the last-seen time of a tag without starting a new
// presentation.
func (p *presence) Touch(id string, now time.Time) {
	p.mu.Lock()
	p.lastSeen[id] = now
	p.mu.Unlock()
}

// Forget drops a tag so that it is scanned again on its next poll.
func (p *presence) Forget(id string) {
	p.mu.Lock()
	delete(p.lastSeen, id)
	p.mu.Unlock()
}

// Expire drops every tag not seen within the timeout and returns their IDs.
func (p *presence) Expire(now time.Time) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var gone []string
	for id, last := range p.lastSeen {
		if now.Sub(last) >= p.timeout {
			delete(p.lastSeen, id)
			gone = append(gone, id)
		}
	}
	return gone
}

// Present reports how many tags are currently considered in the field.
func (p *presence) Present() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lastSeen)
}
