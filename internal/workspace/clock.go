package workspace

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/roach88/graft/internal/store"
)

// Clock stamps every write with a seq. Assets, import records and run
// journal entries share one sequence, so "latest" never depends on wall time.
//
// Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// ClockAfter returns a clock whose first stamp is after+1.
func ClockAfter(after int64) *Clock {
	c := &Clock{}
	c.last.Store(after)
	return c
}

// ResumeClock returns a clock that continues after the highest seq in st.
func ResumeClock(ctx context.Context, st *store.Store) (*Clock, error) {
	last, err := st.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	return ClockAfter(last), nil
}

// Next returns a new stamp greater than every stamp handed out before.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recent stamp, or the resume point if none was issued.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
