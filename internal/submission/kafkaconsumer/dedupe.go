package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// tokenDedupe remembers the highest token applied per session.
type tokenDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newTokenDedupe(size int) *tokenDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &tokenDedupe{lru: c}
}

// shouldApply returns true if token is greater than the last one seen for session.
func (d *tokenDedupe) shouldApply(session string, token uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(session); ok && token <= last {
		return false
	}
	d.lru.Add(session, token)
	return true
}

func (d *tokenDedupe) forget(session string) {
	d.mu.Lock()
	d.lru.Remove(session)
	d.mu.Unlock()
}
