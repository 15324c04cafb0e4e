package pipeline

import (
	"github.com/sells-group/edgeflow/internal/model"
)

// OutputPointsAndEdges forwards every enabled vertex-channel collection to the
// vtx pin and every enabled edge-channel collection to the edges pin, tags
// flattened verbatim. Collections excluded from pairing are still forwarded;
// only disabled ones are dropped.
func (c *Context) OutputPointsAndEdges() {
	stageChannel(c.arena, c.out, model.ChannelVertices, model.PinVtx, false)
	stageChannel(c.arena, c.out, model.ChannelEdges, model.PinEdges, false)
}

// PassThrough forwards the original vertex inputs to the vtx pin and the edge
// inputs to the edges pin, untouched. It is used when a run is disabled before
// processing so the output shape is preserved.
func PassThrough(arena *model.Arena, out *model.Outputs) {
	stageChannel(arena, out, model.ChannelVertices, model.PinVtx, true)
	stageChannel(arena, out, model.ChannelEdges, model.PinEdges, true)
}

func stageChannel(arena *model.Arena, out *model.Outputs, ch model.Channel, pin string, includeDisabled bool) {
	for _, h := range arena.Handles(ch) {
		c := arena.Get(h)
		if !includeDisabled && !c.Enabled() {
			continue
		}
		out.Stage(pin, c)
	}
}
