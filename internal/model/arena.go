package model

// Handle is a stable index into an Arena.
type Handle int

// InvalidHandle never refers to a collection.
const InvalidHandle Handle = -1

// Arena owns every collection of a run. The dictionary, resolver and batches
// all hold Handles into it instead of sharing pointers.
type Arena struct {
	items []*Collection
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add takes ownership of c, assigns its handle and returns it.
func (a *Arena) Add(c *Collection) Handle {
	h := Handle(len(a.items))
	c.Handle = h
	if c.Tags == nil {
		c.Tags = NewTags()
	}
	a.items = append(a.items, c)
	return h
}

// Get returns the collection for h, or nil when h is out of range.
func (a *Arena) Get(h Handle) *Collection {
	if h < 0 || int(h) >= len(a.items) {
		return nil
	}
	return a.items[h]
}

// Len returns the number of collections in the arena.
func (a *Arena) Len() int { return len(a.items) }

// Handles returns every handle whose collection arrived on ch, in input order.
func (a *Arena) Handles(ch Channel) []Handle {
	var out []Handle
	for _, c := range a.items {
		if c.Source == ch {
			out = append(out, c.Handle)
		}
	}
	return out
}
