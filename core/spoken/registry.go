// Package spoken tracks which assistant messages were already read aloud.
package spoken

import (
	"github.com/patrickmn/go-cache"
)

// Registry is a set of message ids. Entries never expire; they are removed
// only by Clear.
type Registry struct {
	ids *cache.Cache
}

func NewRegistry() *Registry {
	return &Registry{ids: cache.New(cache.NoExpiration, 0)}
}

func (r *Registry) Mark(id string) {
	r.ids.Set(id, struct{}{}, cache.NoExpiration)
}

// MarkIfNew marks id and reports whether it was not marked before. Only one
// of several concurrent callers for the same id gets true.
func (r *Registry) MarkIfNew(id string) bool {
	return r.ids.Add(id, struct{}{}, cache.NoExpiration) == nil
}

func (r *Registry) HasBeen(id string) bool {
	_, found := r.ids.Get(id)
	return found
}

func (r *Registry) Len() int {
	return r.ids.ItemCount()
}

func (r *Registry) Clear() {
	r.ids.Flush()
}
