package live

import (
	"context"
	"sync"
	"testing"
	"time"
)

// countingStore is a stand-in for the real store: a guarded slice whose
// snapshot function mirrors a store read.
type countingStore struct {
	mu     sync.Mutex
	values []int
}

func (s *countingStore) append(value int) {
	s.mu.Lock()
	s.values = append(s.values, value)
	s.mu.Unlock()
}

func (s *countingStore) snapshot(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]int, len(s.values))
	copy(copied, s.values)
	return copied, nil
}

func TestQueryDeliversInitialResult(t *testing.T) {
	dispatcher := NewDispatcher()
	store := &countingStore{}
	store.append(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query := NewQuery(ctx, dispatcher, store.snapshot, nil, TableMeals)
	defer query.Close()

	select {
	case result := <-query.Results():
		if len(result) != 1 || result[0] != 1 {
			t.Fatalf("unexpected initial result: %v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an initial result")
	}
}

func TestQueryRecomputesAfterWrite(t *testing.T) {
	dispatcher := NewDispatcher()
	store := &countingStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query := NewQuery(ctx, dispatcher, store.snapshot, nil, TableMeals)
	defer query.Close()

	// Drain the initial snapshot.
	select {
	case <-query.Results():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an initial result")
	}

	// Commit the write first, then publish, as the store services do. The
	// recompute therefore must observe the write.
	store.append(42)
	dispatcher.Publish(Event{Table: TableMeals, Op: OpAdd, MealID: 1})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case result := <-query.Results():
			if len(result) == 1 && result[0] == 42 {
				return
			}
		case <-deadline:
			t.Fatalf("recompute never observed the committed write")
		}
	}
}

func TestQueryIgnoresUnwatchedTables(t *testing.T) {
	dispatcher := NewDispatcher()
	store := &countingStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query := NewQuery(ctx, dispatcher, store.snapshot, nil, TableSettings)
	defer query.Close()

	select {
	case <-query.Results():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an initial result")
	}

	store.append(1)
	dispatcher.Publish(Event{Table: TableMeals, Op: OpAdd, MealID: 1})

	select {
	case result := <-query.Results():
		t.Fatalf("unexpected recompute for unwatched table: %v", result)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestQueryCloseStopsDelivery(t *testing.T) {
	dispatcher := NewDispatcher()
	store := &countingStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query := NewQuery(ctx, dispatcher, store.snapshot, nil, TableMeals)

	select {
	case <-query.Results():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an initial result")
	}

	query.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-query.Results():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("results channel never closed")
		}
	}
}
