package mirror

// Hooks are side effects run when a collection changes. They run while the
// engine lock is held and must not call back into the engine.
type Hooks[E any] struct {
	Added   func(E)
	Removed func(E)
	Changed func(E)
}

type entry[E any] struct {
	entity   E
	lastSeen uint64
}

// Collection is an ordered, name-keyed set of entities reconciled by
// mark-and-sweep. An entity object is created once per identity and mutated
// in place afterwards, so references held elsewhere stay valid.
// Collection is not safe for concurrent use.
type Collection[E any] struct {
	hooks   Hooks[E]
	entries map[string]*entry[E]
	order   []string
	tick    uint64
}

// NewCollection returns an empty collection.
func NewCollection[E any](hooks Hooks[E]) *Collection[E] {
	return &Collection[E]{
		hooks:   hooks,
		entries: make(map[string]*entry[E]),
	}
}

// Reconcile applies one resync pass against the authoritative keys, given
// in display order. Existing entities are passed to update with their new
// position; missing ones are built by create. Entities absent from keys are
// removed after the pass.
func (c *Collection[E]) Reconcile(keys []string, create func(i int, key string) E, update func(i int, e E)) {
	c.tick++
	order := make([]string, 0, len(keys))

	for i, key := range keys {
		if en, ok := c.entries[key]; ok {
			if en.lastSeen == c.tick {
				continue // duplicate key in the snapshot
			}
			en.lastSeen = c.tick
			if update != nil {
				update(i, en.entity)
			}
		} else {
			e := create(i, key)
			c.entries[key] = &entry[E]{entity: e, lastSeen: c.tick}
			if c.hooks.Added != nil {
				c.hooks.Added(e)
			}
		}
		order = append(order, key)
	}

	for _, key := range c.order {
		en, ok := c.entries[key]
		if !ok || en.lastSeen == c.tick {
			continue
		}
		if c.hooks.Removed != nil {
			c.hooks.Removed(en.entity)
		}
		delete(c.entries, key)
	}
	c.order = order
}

// Add appends an entity unless the key exists. It reports whether e was added.
func (c *Collection[E]) Add(key string, e E) bool {
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = &entry[E]{entity: e, lastSeen: c.tick}
	c.order = append(c.order, key)
	if c.hooks.Added != nil {
		c.hooks.Added(e)
	}
	return true
}

// Remove deletes the entity under key, running the Removed hook.
func (c *Collection[E]) Remove(key string) bool {
	en, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.hooks.Removed != nil {
		c.hooks.Removed(en.entity)
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entity stored under key.
func (c *Collection[E]) Get(key string) (E, bool) {
	en, ok := c.entries[key]
	if !ok {
		var zero E
		return zero, false
	}
	return en.entity, true
}

// Rename moves the entity from one key to another, keeping the same object
// and its position. It fails when from is unknown or to is taken.
func (c *Collection[E]) Rename(from, to string) bool {
	en, ok := c.entries[from]
	if !ok {
		return false
	}
	if _, taken := c.entries[to]; taken {
		return false
	}
	delete(c.entries, from)
	c.entries[to] = en
	for i, k := range c.order {
		if k == from {
			c.order[i] = to
			break
		}
	}
	return true
}

// Reorder replaces the local order with keys. Unknown keys are ignored;
// local keys missing from keys keep their relative order at the end.
func (c *Collection[E]) Reorder(keys []string) {
	order := make([]string, 0, len(c.order))
	placed := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := c.entries[k]; ok && !placed[k] {
			order = append(order, k)
			placed[k] = true
		}
	}
	for _, k := range c.order {
		if !placed[k] {
			order = append(order, k)
		}
	}
	c.order = order
}

// Changed runs the Changed hook for e.
func (c *Collection[E]) Changed(e E) {
	if c.hooks.Changed != nil {
		c.hooks.Changed(e)
	}
}

// Ordered returns the entities in display order.
func (c *Collection[E]) Ordered() []E {
	out := make([]E, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k].entity)
	}
	return out
}

// Keys returns the identities in display order.
func (c *Collection[E]) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of entities.
func (c *Collection[E]) Len() int {
	return len(c.entries)
}

// Tick returns the number of resync passes applied so far.
func (c *Collection[E]) Tick() uint64 {
	return c.tick
}
