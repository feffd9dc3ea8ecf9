package metrics

import (
	"sync/atomic"
	"time"
)

// IterationMetric summarizes one book expansion iteration.
type IterationMetric struct {
	Iteration      int
	NodesExpanded  int
	MovesAdded     int
	NodesRefreshed int
	BookSize       int
	Duration       time.Duration
}

// Collector accumulates expansion counters across the parallel workers of
// one iteration.
type Collector interface {
	StartIteration(iteration int)
	AddExpansion()
	AddMovesAdded(n int)
	AddRefresh()
	CompleteIteration(bookSize int) IterationMetric
}

type collector struct {
	iteration      int
	startTime      time.Time
	nodesExpanded  atomic.Int64
	movesAdded     atomic.Int64
	nodesRefreshed atomic.Int64
}

func NewCollector() Collector {
	return &collector{}
}

func (c *collector) StartIteration(iteration int) {
	c.iteration = iteration
	c.startTime = time.Now()
	c.nodesExpanded.Store(0)
	c.movesAdded.Store(0)
	c.nodesRefreshed.Store(0)
}

func (c *collector) AddExpansion() {
	c.nodesExpanded.Add(1)
}

func (c *collector) AddMovesAdded(n int) {
	c.movesAdded.Add(int64(n))
}

func (c *collector) AddRefresh() {
	c.nodesRefreshed.Add(1)
}

func (c *collector) CompleteIteration(bookSize int) IterationMetric {
	return IterationMetric{
		Iteration:      c.iteration,
		NodesExpanded:  int(c.nodesExpanded.Load()),
		MovesAdded:     int(c.movesAdded.Load()),
		NodesRefreshed: int(c.nodesRefreshed.Load()),
		BookSize:       bookSize,
		Duration:       time.Since(c.startTime),
	}
}

type dummyCollector struct{}

// NewDummyCollector returns a collector that records nothing.
func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (d *dummyCollector) StartIteration(iteration int)                   {}
func (d *dummyCollector) AddExpansion()                                  {}
func (d *dummyCollector) AddMovesAdded(n int)                            {}
func (d *dummyCollector) AddRefresh()                                    {}
func (d *dummyCollector) CompleteIteration(bookSize int) IterationMetric { return IterationMetric{} }
