package engine

import "sync"

// aggregator merges per-batch results and resolves the send operation
// exactly once: either the merged invalid-recipient list once every batch
// reports in, or the first fatal error, whichever comes first.
type aggregator struct {
	mu        sync.Mutex
	remaining int
	invalid   []string

	once sync.Once
	err  error
	done chan struct{}
}

func newAggregator(batches int) *aggregator {
	return &aggregator{
		remaining: batches,
		done:      make(chan struct{}),
	}
}

// batchDone records one batch's terminal state. The last batch resolves
// the operation as a success.
func (a *aggregator) batchDone(invalid []string) {
	a.mu.Lock()
	a.invalid = append(a.invalid, invalid...)
	a.remaining--
	finished := a.remaining == 0
	a.mu.Unlock()

	if finished {
		a.resolve(nil)
	}
}

// fail resolves the operation with a fatal error. Later failures and
// later batch completions are ignored; the first resolution wins.
func (a *aggregator) fail(err error) {
	a.resolve(err)
}

func (a *aggregator) resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// wait blocks until the operation resolves. Batches still in flight after
// a fatal resolution keep draining in the background; their outcomes are
// no longer observable.
func (a *aggregator) wait() ([]string, error) {
	<-a.done
	if a.err != nil {
		return nil, a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.invalid, nil
}
