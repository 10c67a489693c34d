package rag

import "sync/atomic"

// ActiveIndex is the collection currently answering questions.
type ActiveIndex struct {
	Collection string
	Retriever  *Retriever
}

// Registry holds the single active index. Each Set replaces the previous
// index entirely; the last writer wins and no history is kept.
type Registry struct {
	active atomic.Pointer[ActiveIndex]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the active index, or false if nothing has been indexed yet.
func (r *Registry) Get() (*ActiveIndex, bool) {
	a := r.active.Load()
	return a, a != nil
}

// Set publishes collection and retriever together, so readers never pair a
// name with another upload's retriever.
func (r *Registry) Set(collection string, retriever *Retriever) {
	r.active.Store(&ActiveIndex{Collection: collection, Retriever: retriever})
}
