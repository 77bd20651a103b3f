package memory

import (
	"strings"
	"sync"
)

// Namespaces maps tenant namespaces to their stores. A namespace's store is
// created on first use and survives handle eviction.
type Namespaces struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewNamespaces() *Namespaces {
	return &Namespaces{stores: make(map[string]*Store)}
}

func (n *Namespaces) Store(namespace string) *Store {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := strings.TrimSpace(namespace)
	store, ok := n.stores[key]
	if !ok {
		store = NewStore()
		n.stores[key] = store
	}
	return store
}
