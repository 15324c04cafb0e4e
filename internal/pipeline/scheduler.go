package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/batch"
)

// scheduler advances batches through their phases. The context picks one
// strategy at construction.
type scheduler interface {
	start(c *Context)
	tick(c *Context, next State, nextAsync bool) bool
}

// parallelScheduler submits every batch at once and crosses each phase as a
// single barrier over all of them.
type parallelScheduler struct{}

func (parallelScheduler) start(c *Context) {
	c.SetAsyncState(StateClusterProcessing)
	for _, b := range c.batches {
		b.ScheduleOn(c.manager, c.settings.ScopedIndexLookupBuild)
	}
}

func (s parallelScheduler) tick(c *Context, next State, nextAsync bool) bool {
	if !c.manager.Idle() {
		return false
	}

	switch c.state {
	case StateClusterProcessing:
		call(c.hooks.InitialProcessingDone)
		if !c.settings.SkipBatchCompletionStep {
			c.SetAsyncState(StateClusterCompletingWork)
			c.scheduleAll(func(b *batch.Batch) error {
				if b.SkipCompletion {
					return nil
				}
				return b.CompleteWork()
			})
			return false
		}
		return s.afterCompletion(c, next, nextAsync)

	case StateClusterCompletingWork:
		call(c.hooks.WorkComplete)
		return s.afterCompletion(c, next, nextAsync)

	case StateClusterWriting:
		call(c.hooks.WritingDone)
		return c.finish(next, nextAsync)
	}
	return false
}

func (parallelScheduler) afterCompletion(c *Context, next State, nextAsync bool) bool {
	if c.settings.DoBatchWritingStep {
		c.SetAsyncState(StateClusterWriting)
		c.scheduleAll(func(b *batch.Batch) error { return b.Write() })
		return false
	}
	return c.finish(next, nextAsync)
}

// inlineScheduler walks a cursor over the batches. Only the batch under the
// cursor is live; it finishes every enabled phase before the cursor moves.
type inlineScheduler struct {
	cursor  int
	current *batch.Batch
}

func (s *inlineScheduler) start(c *Context) {
	s.cursor = -1
	s.current = nil
}

func (s *inlineScheduler) tick(c *Context, next State, nextAsync bool) bool {
	if s.current == nil {
		if s.cursor == -1 {
			return s.advance(c, next, nextAsync)
		}
		return true
	}
	if !c.manager.Idle() {
		return false
	}

	b := s.current
	switch c.state {
	case StateClusterProcessing:
		call(c.hooks.InitialProcessingDone)
		if !c.settings.SkipBatchCompletionStep && !b.SkipCompletion {
			c.SetAsyncState(StateClusterCompletingWork)
			if err := b.CompleteWork(); err != nil {
				c.log.Warn("batch phase not scheduled", zap.Int("batch", b.Index), zap.Error(err))
			}
			return false
		}
		return s.afterCompletion(c, next, nextAsync)

	case StateClusterCompletingWork:
		call(c.hooks.WorkComplete)
		return s.afterCompletion(c, next, nextAsync)

	case StateClusterWriting:
		call(c.hooks.WritingDone)
		return s.advance(c, next, nextAsync)
	}
	return false
}

func (s *inlineScheduler) afterCompletion(c *Context, next State, nextAsync bool) bool {
	if c.settings.DoBatchWritingStep {
		c.SetAsyncState(StateClusterWriting)
		if err := s.current.Write(); err != nil {
			c.log.Warn("batch phase not scheduled", zap.Int("batch", s.current.Index), zap.Error(err))
		}
		return false
	}
	return s.advance(c, next, nextAsync)
}

// advance retires the current batch and schedules the next one, or moves the
// context to next when the cursor runs off the end.
func (s *inlineScheduler) advance(c *Context, next State, nextAsync bool) bool {
	if s.current != nil {
		s.retire(c, s.current)
	}

	s.cursor++
	if s.cursor >= len(c.batches) {
		s.current = nil
		return c.finish(next, nextAsync)
	}

	s.current = c.batches[s.cursor]
	c.SetAsyncState(StateClusterProcessing)
	s.current.ScheduleOn(c.manager, c.settings.ScopedIndexLookupBuild)
	return false
}

// retire stages a finished batch. Without graph compilation nothing else
// needs its processors, so they are released before the next batch starts.
func (s *inlineScheduler) retire(c *Context, b *batch.Batch) {
	c.outputBatch(b)
	if !c.settings.CompileGraph {
		b.Cleanup()
	}
}
