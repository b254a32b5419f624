package vm

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wasmerio/wasmer-go/wasmer"

	"alkanes/pkg/alkanes"
)

// ModuleCache is the global, bounded, LRU-evicted cache of compiled guest
// modules keyed by alkane id (spec.md §4.6 "Memory refresh", §5 "Shared
// resources"). Grounded on the teacher's LRU idiom, built on
// hashicorp/golang-lru/v2 like the SMT node cache.
type ModuleCache struct {
	modules *lru.Cache[alkanes.AlkaneId, *wasmer.Module]
}

// NewModuleCache returns a cache holding up to size compiled modules.
func NewModuleCache(size int) *ModuleCache {
	c, err := lru.New[alkanes.AlkaneId, *wasmer.Module](size)
	if err != nil {
		panic(err)
	}
	return &ModuleCache{modules: c}
}

func (c *ModuleCache) Get(id alkanes.AlkaneId) (*wasmer.Module, bool) {
	return c.modules.Get(id)
}

func (c *ModuleCache) Put(id alkanes.AlkaneId, m *wasmer.Module) {
	c.modules.Add(id, m)
}

func (c *ModuleCache) Remove(id alkanes.AlkaneId) {
	c.modules.Remove(id)
}

func (c *ModuleCache) Len() int { return c.modules.Len() }

// Purge evicts every cached module, spec.md §4.6's "memory refresh"
// operation.
func (c *ModuleCache) Purge() { c.modules.Purge() }
