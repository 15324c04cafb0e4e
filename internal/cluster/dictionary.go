package cluster

import (
	"github.com/sells-group/edgeflow/internal/model"
)

// Dictionary maps a cluster key to the vertex collection that owns it and the
// edge collections that share it. It is built once before any parallel work
// and only read afterwards.
type Dictionary struct {
	arena   *model.Arena
	tag     string
	owners  map[int64]model.Handle
	entries map[int64][]model.Handle
	keys    []int64
}

// NewDictionary creates a dictionary keyed by the typed value of tag.
func NewDictionary(arena *model.Arena, tag string) *Dictionary {
	return &Dictionary{
		arena:   arena,
		tag:     tag,
		owners:  make(map[int64]model.Handle),
		entries: make(map[int64][]model.Handle),
	}
}

// CreateKey registers h as the unique owner of the key read from its tag. It
// returns false, leaving the collection untouched, when the tag is absent or
// the key already has an owner.
func (d *Dictionary) CreateKey(h model.Handle) bool {
	c := d.arena.Get(h)
	if c == nil {
		return false
	}
	key, ok := c.Tags.Value(d.tag)
	if !ok {
		return false
	}
	if _, taken := d.owners[key]; taken {
		return false
	}
	d.owners[key] = h
	d.keys = append(d.keys, key)
	return true
}

// TryAddEntry appends h to the entries of its key. It returns false when the
// tag is absent or no owner was registered for the key.
func (d *Dictionary) TryAddEntry(h model.Handle) bool {
	c := d.arena.Get(h)
	if c == nil {
		return false
	}
	key, ok := c.Tags.Value(d.tag)
	if !ok {
		return false
	}
	if _, owned := d.owners[key]; !owned {
		return false
	}
	d.entries[key] = append(d.entries[key], h)
	return true
}

// Entries returns the edge collections registered under key, in discovery
// order. It returns nil when the key is unknown or has no entries.
func (d *Dictionary) Entries(key int64) []model.Handle {
	return d.entries[key]
}

// Owner returns the vertex collection owning key.
func (d *Dictionary) Owner(key int64) (model.Handle, bool) {
	h, ok := d.owners[key]
	return h, ok
}

// Keys returns the registered keys in registration order.
func (d *Dictionary) Keys() []int64 {
	return append([]int64(nil), d.keys...)
}
