// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"sync"
	"time"
)

// jwtCache remembers when tokens were last fully validated by a remote
// strategy, so a locally-valid JWT can skip the remote round trip within
// the revocation window.
type jwtCache struct {
	window   time.Duration
	capacity int

	mu      sync.RWMutex
	entries map[string]time.Time
	order   []string // insertion order, for eviction
}

func newJWTCache(window time.Duration, capacity int) *jwtCache {
	return &jwtCache{
		window:   window,
		capacity: capacity,
		entries:  make(map[string]time.Time, capacity),
	}
}

// isRecent reports whether the token was remotely validated within the
// window.
func (c *jwtCache) isRecent(tokenUniqueID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.entries[tokenUniqueID]
	return ok && time.Since(at) < c.window
}

// record stamps the token as freshly validated, evicting the oldest entry
// when the cache is full.
func (c *jwtCache) record(tokenUniqueID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[tokenUniqueID]; !ok {
		for len(c.entries) >= c.capacity && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, tokenUniqueID)
	}
	c.entries[tokenUniqueID] = time.Now()
}
