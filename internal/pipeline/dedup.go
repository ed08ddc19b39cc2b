// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package pipeline

import (
	"crypto/sha256"
	"sync"
)

// dedupWindow remembers the hashes of the most recent submissions and
// reports repeats. It is a bounded FIFO: once the window is full the
// oldest hash is forgotten, so a repeat outside the window passes again.
type dedupWindow struct {
	mu     sync.Mutex
	seen   map[[32]byte]struct{}
	order  [][32]byte
	cursor int
	size   int
}

func newDedupWindow(size int) *dedupWindow {
	return &dedupWindow{
		seen:  make(map[[32]byte]struct{}, size),
		order: make([][32]byte, size),
		size:  size,
	}
}

// observe hashes the user-agent and URL pair and reports whether it was
// already inside the window. New pairs are recorded.
func (d *dedupWindow) observe(userAgent, url string) bool {
	h := sha256.New()
	h.Write([]byte(userAgent))
	h.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	h.Write([]byte(url))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[sum]; ok {
		return true
	}

	// Evict the slot we are about to reuse.
	if old := d.order[d.cursor]; old != ([32]byte{}) {
		delete(d.seen, old)
	}
	d.order[d.cursor] = sum
	d.seen[sum] = struct{}{}
	d.cursor = (d.cursor + 1) % d.size

	return false
}
