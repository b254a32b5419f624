package smt

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies one node record independent of which namespaced tree
// it belongs to.
type cacheKey struct {
	label string
	hash  [32]byte
	depth int
}

// Cache is an LRU of decoded node records shared across Tree instances,
// avoiding a KV round trip for hot upper-tree nodes that get touched by
// nearly every update. Grounded on the teacher's LRU module-instance cache
// idiom (core/virtual_machine.go's compiled-module cache), built on
// hashicorp/golang-lru/v2 — the same library the teacher depends on.
type Cache struct {
	nodes *lru.Cache[cacheKey, node]
}

// NewCache returns a node cache holding up to size entries. A size of 0
// disables caching (Tree treats a nil *Cache the same way).
func NewCache(size int) *Cache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[cacheKey, node](size)
	if err != nil {
		// Only returned for a non-positive size, already excluded above.
		panic(err)
	}
	return &Cache{nodes: c}
}

func (c *Cache) Get(label string, h [32]byte, depth int) (node, bool) {
	if c == nil {
		return node{}, false
	}
	return c.nodes.Get(cacheKey{label: label, hash: h, depth: depth})
}

func (c *Cache) Put(label string, h [32]byte, depth int, n node) {
	if c == nil {
		return
	}
	c.nodes.Add(cacheKey{label: label, hash: h, depth: depth}, n)
}

// Len reports how many node records are currently cached.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.nodes.Len()
}
