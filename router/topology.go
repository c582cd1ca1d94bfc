package router

// rebuild clones the current topology, applies mutate, and swaps it in
// atomically — the same clone-and-swap discipline
// JeelKantaria-db-bouncer/internal/router uses for its routerSnapshot.
// Router itself never exposes a mutable view; every topology change goes
// through this path.
func (r *Router) rebuild(mutate func(*topology)) {
	cur := r.load()
	next := &topology{
		nodes:           make(map[string]*Node, len(cur.nodes)),
		primaryFailover: append([]string(nil), cur.primaryFailover...),
	}
	for name, n := range cur.nodes {
		next.nodes[name] = n
	}
	mutate(next)
	r.topo.Store(next)
}

// AddNode adds or replaces a node's topology entry without disturbing
// any other node's pool or health state.
func (r *Router) AddNode(spec NodeSpec) {
	n := &Node{
		Name:     spec.Name,
		Endpoint: spec.Endpoint,
		Role:     spec.Role,
		Weight:   spec.Weight,
		MaxPool:  spec.MaxPool,
		health:   newHealth(),
	}
	n.pool = newNodePool(spec)
	r.rebuild(func(t *topology) {
		t.nodes[spec.Name] = n
	})
}

// RemoveNode drops a node from the topology and closes its pool. Returns
// false if the node did not exist.
func (r *Router) RemoveNode(name string) bool {
	cur := r.load()
	removed, ok := cur.nodes[name]
	if !ok {
		return false
	}
	r.rebuild(func(t *topology) {
		delete(t.nodes, name)
	})
	removed.pool.Close()
	return true
}

// SetPrimaryFailover replaces the ordered promotion-candidate list.
func (r *Router) SetPrimaryFailover(names []string) {
	r.rebuild(func(t *topology) {
		t.primaryFailover = append([]string(nil), names...)
	})
}

// Close stops the health loop and closes every node's pool.
func (r *Router) Close() {
	r.StopHealthLoop()
	for _, n := range r.load().nodes {
		n.pool.Close()
	}
}
