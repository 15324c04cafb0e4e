package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgeflow/internal/model"
)

func TestDictionary_CreateKey(t *testing.T) {
	t.Parallel()

	a := model.NewArena()
	va := vtx(a, "va", 1)
	vb := vtx(a, "vb", 1)
	untagged := raw(a, "untagged", model.ChannelVertices, model.TagVtx)

	d := NewDictionary(a, model.TagCluster)
	assert.True(t, d.CreateKey(va))
	assert.False(t, d.CreateKey(vb), "second owner of key 1 must be refused")
	assert.False(t, d.CreateKey(untagged))
	assert.False(t, d.CreateKey(model.Handle(99)))

	owner, ok := d.Owner(1)
	require.True(t, ok)
	assert.Equal(t, va, owner)
	assert.Equal(t, []int64{1}, d.Keys())

	// Refused collection is left untouched.
	k, ok := a.Get(vb).ClusterKey()
	require.True(t, ok)
	assert.Equal(t, int64(1), k)
	assert.True(t, a.Get(vb).Enabled())
}

func TestDictionary_TryAddEntry(t *testing.T) {
	t.Parallel()

	a := model.NewArena()
	v := vtx(a, "v", 7)
	e1 := edges(a, "e1", 7)
	e2 := edges(a, "e2", 7)
	orphan := edges(a, "orphan", 8)
	untagged := raw(a, "untagged", model.ChannelEdges, model.TagEdges)

	d := NewDictionary(a, model.TagCluster)
	require.True(t, d.CreateKey(v))

	assert.True(t, d.TryAddEntry(e1))
	assert.True(t, d.TryAddEntry(e2))
	assert.False(t, d.TryAddEntry(orphan))
	assert.False(t, d.TryAddEntry(untagged))

	assert.Equal(t, []model.Handle{e1, e2}, d.Entries(7))
	assert.Nil(t, d.Entries(8))
	assert.Nil(t, d.Entries(1234))
}
