package approval

import "sync"

// resultCell is written at most once and read after done is closed.
type resultCell struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

func newResultCell() *resultCell {
	return &resultCell{done: make(chan struct{})}
}

// set stores r if nothing was stored yet. It reports whether r was stored.
func (c *resultCell) set(r Result) bool {
	stored := false
	c.once.Do(func() {
		c.result = r
		stored = true
		close(c.done)
	})
	return stored
}

func (c *resultCell) get() (Result, bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return Result{}, false
	}
}
