// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types emitted by the broker helpers.
const (
	TypeItemChanged      = "item.changed"
	TypeItemDeleted      = "item.deleted"
	TypeCalcCreated      = "calc.created"
	TypeCalcUpdated      = "calc.updated"
	TypeCalcRetired      = "calc.retired"
	TypeSelectionSummary = "selection.summary"
)

type kindEventReq struct {
	typ string
	id  string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + selection throttle state). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	selectionMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	kindEventCh   chan kindEventReq
	selectionCh   chan interface{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. selection.summary events are sent at
// most once per selectionThrottle; the latest summary of a burst is always
// delivered when the window ends.
func NewBroker(selectionThrottle time.Duration) *Broker {
	if selectionThrottle <= 0 {
		selectionThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		selectionMin:  selectionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		kindEventCh:   make(chan kindEventReq, 256),
		selectionCh:   make(chan interface{}, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	var (
		lastSelection time.Time
		pending       interface{}
		hasPending    bool
		trailing      *time.Timer
		trailingCh    <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendSelection := func(data interface{}) {
		lastSelection = time.Now()
		broadcast(Event{Type: TypeSelectionSummary, Data: data})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.kindEventCh:
			broadcast(Event{Type: req.typ, Data: map[string]string{"id": req.id}})

		case data := <-b.selectionCh:
			wait := b.selectionMin - time.Since(lastSelection)
			if wait <= 0 && !hasPending {
				sendSelection(data)
				continue
			}
			pending, hasPending = data, true
			if trailingCh == nil {
				trailing = time.NewTimer(max(wait, 0))
				trailingCh = trailing.C
			}

		case <-trailingCh:
			trailingCh = nil
			if hasPending {
				sendSelection(pending)
				pending, hasPending = nil, false
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishItemEvent publishes a board item change. kind is "changed" or
// "deleted"; anything else is ignored.
func (b *Broker) PublishItemEvent(kind, id string) {
	switch kind {
	case "changed":
		b.publishKind(TypeItemChanged, id)
	case "deleted":
		b.publishKind(TypeItemDeleted, id)
	}
}

// PublishCalcEvent publishes a calculator note lifecycle event. kind is
// "created", "updated" or "retired"; anything else is ignored.
func (b *Broker) PublishCalcEvent(kind, id string) {
	switch kind {
	case "created":
		b.publishKind(TypeCalcCreated, id)
	case "updated":
		b.publishKind(TypeCalcUpdated, id)
	case "retired":
		b.publishKind(TypeCalcRetired, id)
	}
}

func (b *Broker) publishKind(typ, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.kindEventCh <- kindEventReq{typ: typ, id: id}:
	case <-b.stopped:
	}
}

// PublishSelection publishes a throttled selection.summary event.
func (b *Broker) PublishSelection(summary interface{}) {
	if b.closed.Load() {
		return
	}
	select {
	case b.selectionCh <- summary:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
