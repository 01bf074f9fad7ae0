package board

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/starford/tally/internal/models"
)

// dispatcher delivers events to subscribers from one goroutine, in publish
// order. Publishing never blocks: a subscriber that writes back to the board
// from its handler cannot deadlock against delivery.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[models.EventKind][]func(models.Event)
	queue    []models.Event

	wake    chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		handlers: make(map[models.EventKind][]func(models.Event)),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(kind models.EventKind, h func(models.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], h)
}

func (d *dispatcher) publish(ev models.Event) {
	if d.closed.Load() {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.stopCh:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.queue[0]
			d.queue = d.queue[1:]
			hs := slices.Clone(d.handlers[ev.Kind])
			d.mu.Unlock()

			for _, h := range hs {
				h(ev)
			}
		}
	}
}

func (d *dispatcher) close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.stopCh)
	}
	<-d.stopped
}
