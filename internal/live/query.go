package live

import (
	"context"

	"go.uber.org/zap"
)

// QueryFunc reads the store and produces a result snapshot.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Query re-evaluates a store read whenever a watched table changes. The
// initial result is computed eagerly; every subsequent recompute runs after
// the triggering write has committed, because writers publish post-commit.
// Bursts of events are coalesced into a single recompute.
type Query[T any] struct {
	results chan T
	cancel  context.CancelFunc
}

// NewQuery starts a live query over the given tables. Teardown is tied to
// the provided context; Close is available for explicit release.
func NewQuery[T any](ctx context.Context, dispatcher *Dispatcher, queryFn QueryFunc[T], logger *zap.Logger, tables ...Table) *Query[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	queryCtx, cancel := context.WithCancel(ctx)
	query := &Query[T]{
		results: make(chan T, 1),
		cancel:  cancel,
	}
	events, unsubscribe := dispatcher.Subscribe(queryCtx, tables...)

	go func() {
		defer unsubscribe()
		defer close(query.results)

		recompute := func() {
			result, err := queryFn(queryCtx)
			if err != nil {
				if queryCtx.Err() == nil {
					logger.Warn("live query recompute failed", zap.Error(err))
				}
				return
			}
			// Replace a stale undelivered snapshot instead of blocking.
			select {
			case query.results <- result:
			default:
				select {
				case <-query.results:
				default:
				}
				select {
				case query.results <- result:
				default:
				}
			}
		}

		recompute()
		for {
			select {
			case <-queryCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce any backlog before recomputing once.
				for drained := false; !drained; {
					select {
					case _, ok := <-events:
						if !ok {
							drained = true
						}
					default:
						drained = true
					}
				}
				recompute()
			}
		}
	}()

	return query
}

// Results streams fresh snapshots. Consumers that lag only ever see the
// latest snapshot; intermediate ones are dropped.
func (q *Query[T]) Results() <-chan T {
	return q.results
}

// Close stops recomputation and closes the results channel.
func (q *Query[T]) Close() {
	q.cancel()
}
