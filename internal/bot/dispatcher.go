package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrStopped is returned by Dispatch once Stop has been called.
var ErrStopped = errors.New("dispatcher stopped")

// ErrQueueFull is returned when an instructor's event queue is saturated.
var ErrQueueFull = errors.New("event queue full")

// queueSize bounds the per-instructor backlog of unprocessed events.
const queueSize = 64

// Handler applies one inbound event. Implementations may assume that calls
// for the same instructor handle never run concurrently.
type Handler interface {
	HandleText(ctx context.Context, msg TextMessage) error
	HandlePhoto(ctx context.Context, msg PhotoMessage) error
	HandleButton(ctx context.Context, press ButtonPress) error
}

// Event is one inbound transport event; exactly one field is set.
type Event struct {
	Text  *TextMessage  `json:"text,omitempty"`
	Photo *PhotoMessage `json:"photo,omitempty"`
	Press *ButtonPress  `json:"press,omitempty"`
}

// From returns the instructor handle the event belongs to, or 0 for a
// malformed event.
func (e Event) From() int64 {
	switch {
	case e.Text != nil:
		return e.Text.From
	case e.Photo != nil:
		return e.Photo.From
	case e.Press != nil:
		return e.Press.From
	default:
		return 0
	}
}

// Dispatcher routes inbound events to the handler. Events for different
// instructors run concurrently; events for one instructor are applied
// strictly in arrival order on a dedicated goroutine, bounded by a
// per-event timeout. Handler errors become a best-effort failure message
// to the instructor and never escape.
type Dispatcher struct {
	handler   Handler
	transport Transport
	messages  *Catalog
	timeout   time.Duration

	mu      sync.Mutex
	queues  map[int64]chan Event
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds the handling of a
// single event, including image download and classifier inference.
func NewDispatcher(handler Handler, transport Transport, messages *Catalog, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		handler:   handler,
		transport: transport,
		messages:  messages,
		timeout:   timeout,
		queues:    make(map[int64]chan Event),
	}
}

// Dispatch enqueues one event for its instructor. Returns ErrStopped after
// Stop, ErrQueueFull when the instructor's backlog is saturated, and an
// error for events without a sender.
func (d *Dispatcher) Dispatch(ev Event) error {
	from := ev.From()
	if from == 0 {
		return fmt.Errorf("event carries no sender")
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	queue, ok := d.queues[from]
	if !ok {
		queue = make(chan Event, queueSize)
		d.queues[from] = queue
		d.wg.Add(1)
		go d.worker(from, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new events and waits for all in-flight and queued events to
// finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// worker drains one instructor's queue in arrival order.
func (d *Dispatcher) worker(from int64, queue chan Event) {
	defer d.wg.Done()
	for ev := range queue {
		d.apply(from, ev)
	}
}

// apply runs one event under the per-event timeout. On failure the state is
// left to the handler; here the error is logged and converted into a
// best-effort user message whose own delivery failure is swallowed.
func (d *Dispatcher) apply(from int64, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	switch {
	case ev.Text != nil:
		err = d.handler.HandleText(ctx, *ev.Text)
	case ev.Photo != nil:
		err = d.handler.HandlePhoto(ctx, *ev.Photo)
	case ev.Press != nil:
		err = d.handler.HandleButton(ctx, *ev.Press)
	}
	if err == nil {
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("event for instructor %d timed out, dropped", from)
		return
	}
	log.Printf("event for instructor %d failed: %v", from, err)

	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifyCancel()
	if sendErr := d.transport.SendText(notifyCtx, from, d.messages.Text("failure"), nil); sendErr != nil {
		log.Printf("failed to notify instructor %d: %v", from, sendErr)
	}
}
