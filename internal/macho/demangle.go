package macho

import (
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// demangleCache memoizes demangle.Filter results. Symbol tables repeat the
// same mangled names across slices and repeated parses, and demangling is
// the slowest part of symbol loading.
type demangleCache struct {
	mu    sync.RWMutex
	names map[string]string
}

var dcache = &demangleCache{names: make(map[string]string)}

// CachedDemangle returns the demangled form of a symbol name, memoized.
// Names the demangler does not recognize come back unchanged.
func CachedDemangle(mangled string) string {
	dcache.mu.RLock()
	if d, ok := dcache.names[mangled]; ok {
		dcache.mu.RUnlock()
		return d
	}
	dcache.mu.RUnlock()

	d := demangle.Filter(mangled, demangle.NoClones)

	dcache.mu.Lock()
	dcache.names[mangled] = d
	dcache.mu.Unlock()
	return d
}
