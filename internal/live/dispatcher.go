package live

import (
	"context"
	"sync"
	"time"
)

// Table names events by the store table they touch.
type Table string

const (
	TableMeals    Table = "meals"
	TableSettings Table = "settings"
)

// Op enumerates the write kinds a subscriber can observe.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one committed write against a store table.
type Event struct {
	Table  Table     `json:"table"`
	Op     Op        `json:"op"`
	MealID uint      `json:"meal_id,omitempty"`
	At     time.Time `json:"at"`
}

// Dispatcher fans committed write events out to table-filtered subscribers.
// Publishes never block: a subscriber that falls behind drops events, which
// is acceptable because live queries re-read the store rather than replaying
// the event stream.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[Table]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[Table]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers interest in writes to the given tables. The returned
// channel receives events until the context is cancelled or the cleanup
// function runs.
func (d *Dispatcher) Subscribe(ctx context.Context, tables ...Table) (<-chan Event, func()) {
	if len(tables) == 0 {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Event, d.bufferSize),
	}
	for _, table := range tables {
		d.register(table, sub)
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			for _, table := range tables {
				d.unregister(table, sub.id)
			}
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers the event to every subscriber of its table.
func (d *Dispatcher) Publish(event Event) {
	if event.Table == "" {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	d.mu.RLock()
	registered := d.subscribers[event.Table]
	if len(registered) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(registered))
	for _, sub := range registered {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(table Table, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[table]; !ok {
		d.subscribers[table] = make(map[int64]*subscriber)
	}
	d.subscribers[table][sub.id] = sub
}

func (d *Dispatcher) unregister(table Table, subscriberID int64) {
	d.mu.Lock()
	registered := d.subscribers[table]
	if registered != nil {
		delete(registered, subscriberID)
		if len(registered) == 0 {
			delete(d.subscribers, table)
		}
	}
	d.mu.Unlock()
}
