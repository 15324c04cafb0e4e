package model

import (
	"strconv"
	"strings"
)

// Tag names understood by the cluster pipeline.
const (
	TagVtx     = "edgeflow/vtx"
	TagEdges   = "edgeflow/edges"
	TagCluster = "edgeflow/cluster"
)

// tag is one raw entry. Typed entries ("name:123") also carry their parsed
// name and value.
type tag struct {
	raw   string
	name  string
	value int64
	typed bool
}

// Tags is the ordered tag list of a collection. Entries keep their raw form
// and position; Flatten returns them exactly as parsed unless Set rewrote a
// typed value.
type Tags struct {
	entries []tag
}

// NewTags returns an empty tag set.
func NewTags() *Tags {
	return &Tags{}
}

// ParseTags builds a tag set from raw strings. A string of the form
// "name:123" is also readable as a typed value; blank strings are skipped.
func ParseTags(raw []string) *Tags {
	t := NewTags()
	for _, r := range raw {
		name := strings.TrimSpace(r)
		if name == "" {
			continue
		}
		if n, v, ok := splitValue(name); ok {
			t.entries = append(t.entries, tag{raw: r, name: n, value: v, typed: true})
			continue
		}
		t.entries = append(t.entries, tag{raw: r, name: name})
	}
	return t
}

func splitValue(raw string) (string, int64, bool) {
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return "", 0, false
	}
	v, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return raw[:idx], v, true
}

// IsTagged reports whether name is present either as a plain tag or as a
// typed value.
func (t *Tags) IsTagged(name string) bool {
	if t == nil {
		return false
	}
	for _, e := range t.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// Add appends a plain tag. Adding an existing plain tag is a no-op.
func (t *Tags) Add(name string) {
	for _, e := range t.entries {
		if !e.typed && e.name == name {
			return
		}
	}
	t.entries = append(t.entries, tag{raw: name, name: name})
}

// Set rewrites every typed entry named name in place, or appends one when
// none exists.
func (t *Tags) Set(name string, v int64) {
	raw := name + ":" + strconv.FormatInt(v, 10)
	found := false
	for i := range t.entries {
		e := &t.entries[i]
		if e.typed && e.name == name {
			e.raw, e.value = raw, v
			found = true
		}
	}
	if !found {
		t.entries = append(t.entries, tag{raw: raw, name: name, value: v, typed: true})
	}
}

// Value returns the first typed value stored under name.
func (t *Tags) Value(name string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	for _, e := range t.entries {
		if e.typed && e.name == name {
			return e.value, true
		}
	}
	return 0, false
}

// Remove deletes every entry named name, plain or typed.
func (t *Tags) Remove(name string) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.name != name {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Clone returns a deep copy.
func (t *Tags) Clone() *Tags {
	c := NewTags()
	if t == nil {
		return c
	}
	c.entries = append(c.entries, t.entries...)
	return c
}

// Flatten renders the set back to raw strings in their original order.
func (t *Tags) Flatten() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.raw)
	}
	return out
}
