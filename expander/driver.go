package expander

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/metrics"
	"github.com/kennyfs/KataCoffee/searcher"
)

// Driver runs the iteration loop: select the cheapest leaves, fan the
// expansions out over the worker pool, propagate, save on cadence.
type Driver struct {
	book     *book.Book
	expander *Expander
	searches []*searcher.Search
	logger   zerolog.Logger
	stop     *atomic.Bool
	metrics  metrics.Collector

	NumToExpandPerIteration int

	// IterationMetrics collects one record per completed iteration.
	IterationMetrics []metrics.IterationMetric
}

func NewDriver(
	b *book.Book,
	e *Expander,
	searches []*searcher.Search,
	logger zerolog.Logger,
	stop *atomic.Bool,
	collector metrics.Collector,
	numToExpandPerIteration int,
) *Driver {
	if collector == nil {
		collector = metrics.NewDummyCollector()
	}
	return &Driver{
		book:                    b,
		expander:                e,
		searches:                searches,
		logger:                  logger,
		stop:                    stop,
		metrics:                 collector,
		NumToExpandPerIteration: numToExpandPerIteration,
	}
}

// SaveBook snapshots the book and writes the config sidecar next to it.
func (d *Driver) SaveBook(bookFile string, cfgText []byte) error {
	d.logger.Info().Str("file", bookFile).Msg("saving book")
	if err := d.book.SaveToFile(bookFile); err != nil {
		return err
	}
	if err := os.WriteFile(bookFile+".cfg", cfgText, 0644); err != nil {
		return fmt.Errorf("writing config sidecar: %w", err)
	}
	return nil
}

// RunIterations expands the book for numIterations iterations, saving before
// every saveEvery-th iteration after the first. It does not save after the
// last iteration; the final save is the caller's, through SaveBook. Early
// iterations ramp up from a single expansion so the first searches stay
// narrow.
func (d *Driver) RunIterations(numIterations, saveEvery int, bookFile string, cfgText []byte) error {
	for iteration := 0; iteration < numIterations; iteration++ {
		if d.stop.Load() {
			break
		}
		if saveEvery > 0 && iteration%saveEvery == 0 && iteration != 0 {
			if err := d.SaveBook(bookFile, cfgText); err != nil {
				return err
			}
		}

		d.logger.Info().Int("iteration", iteration).Msg("beginning book expansion iteration")
		d.metrics.StartIteration(iteration)

		numToExpand := 1 + iteration/2
		if numToExpand > d.NumToExpandPerIteration {
			numToExpand = d.NumToExpandPerIteration
		}
		nodesToExpand := d.book.NextNToExpand(numToExpand)

		queue := make(chan book.Node, len(nodesToExpand))
		for _, n := range nodesToExpand {
			queue <- n
		}
		close(queue)

		changed := append([]book.Node(nil), nodesToExpand...)
		var mu sync.Mutex

		var g errgroup.Group
		for _, s := range d.searches {
			s := s
			g.Go(func() error {
				for node := range queue {
					if d.stop.Load() {
						return nil
					}
					out := d.expander.Expand(s, node)
					mu.Lock()
					changed = append(changed, out...)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		d.book.Recompute(changed)
		d.IterationMetrics = append(d.IterationMetrics, d.metrics.CompleteIteration(d.book.Size()))
		if d.stop.Load() {
			break
		}
	}
	return nil
}

// RunTrace copies every qualifying variation of another book into this one:
// a parallel add-only walk over the trace book's leaves, then a batched
// value refresh of every touched node, then a full recompute. If stopped
// mid-way the book must not be saved; an error is returned.
func (d *Driver) RunTrace(traceBook *book.Book, minVisits float64) error {
	leaves := traceBook.AllLeaves(minVisits)
	d.logger.Info().Int("leaves", len(leaves)).Msg("tracing book")

	toUpdate := make(map[book.Hash]bool)
	var updateMu sync.Mutex
	{
		queue := make(chan book.Node, len(leaves))
		for _, n := range leaves {
			queue <- n
		}
		close(queue)

		var variationsAdded atomic.Int64
		var g errgroup.Group
		for range d.searches {
			g.Go(func() error {
				for node := range queue {
					if d.stop.Load() {
						return nil
					}
					hist, _, _, ok := traceBook.HistoryReachingHere(node)
					if !ok {
						return fmt.Errorf("%w: cannot reconstruct trace book history for %s", book.ErrIntegrity, node.Hash())
					}
					local := make(map[book.Hash]bool)
					if err := d.expander.AddVariationWithoutUpdate(hist, local); err != nil {
						return err
					}
					updateMu.Lock()
					for h := range local {
						toUpdate[h] = true
					}
					updateMu.Unlock()
					if added := variationsAdded.Add(1); added%400 == 0 {
						d.logger.Info().
							Int64("added", added).
							Int("total", len(leaves)).
							Msg("tracing book variations")
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	{
		hashes := make([]book.Hash, 0, len(toUpdate))
		for h := range toUpdate {
			hashes = append(hashes, h)
		}
		queue := make(chan book.Hash, len(hashes))
		for _, h := range hashes {
			queue <- h
		}
		close(queue)

		var hashesUpdated atomic.Int64
		var g errgroup.Group
		for _, s := range d.searches {
			s := s
			g.Go(func() error {
				for hash := range queue {
					if d.stop.Load() {
						return nil
					}
					node := d.book.ByHash(hash)
					if node.IsNil() {
						continue
					}
					if err := d.expander.SearchAndUpdateNodeValues(s, node); err != nil {
						return err
					}
					if updated := hashesUpdated.Add(1); updated%100 == 0 {
						d.logger.Info().
							Int64("updated", updated).
							Int("total", len(hashes)).
							Msg("refreshing traced nodes")
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if d.stop.Load() {
		return fmt.Errorf("trace incomplete, not saving")
	}

	d.logger.Info().Msg("recomputing recursive values for entire book")
	d.book.RecomputeEverything()
	return nil
}
