package layer

import "sort"

// Registry maps layer names to loaded layers for one run. Layers are shared
// by reference: a pairing that names an already-loaded layer sees every
// column earlier pairings wrote onto it. Not safe for concurrent use.
type Registry struct {
	layers map[string]*Layer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{layers: make(map[string]*Layer)}
}

// Has reports whether name is loaded.
func (r *Registry) Has(name string) bool {
	_, ok := r.layers[name]
	return ok
}

// Get returns the layer registered as name, or nil.
func (r *Registry) Get(name string) *Layer {
	return r.layers[name]
}

// Put registers l under name, replacing any previous layer.
func (r *Registry) Put(name string, l *Layer) {
	l.Name = name
	r.layers[name] = l
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.layers))
	for n := range r.layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
