// Package sse implements a Server-Sent Events broker for real-time note
// updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/observable"
	"github.com/starford/quire/internal/provider"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ItemData is the payload of item.* and file.* events.
type ItemData struct {
	Provider string `json:"provider"`
	UID      string `json:"uid"`
	Title    string `json:"title,omitempty"`
}

// LoadedData is the payload of provider.loaded events.
type LoadedData struct {
	Provider string `json:"provider"`
	Notes    int    `json:"notes"`
	Trash    int    `json:"trash"`
}

// StoreData is the payload of store.changed events: at Position, Removed
// entries were dropped and Added inserted, leaving Length exposed.
type StoreData struct {
	Collection string `json:"collection"`
	Position   int    `json:"position"`
	Removed    int    `json:"removed"`
	Added      int    `json:"added"`
	Length     int    `json:"length"`
}

type fileEventReq struct {
	kind string
	data ItemData
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + index throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	indexMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	fileEventCh   chan fileEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ manager.EventSink = (*Broker)(nil)

// NewBroker creates a new SSE broker. indexThrottle bounds how often
// index.updated follows a burst of file events.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}

	b := &Broker{
		indexMin:      indexThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		fileEventCh:   make(chan fileEventReq, 256),
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
	var lastIndex time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
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

		case req := <-b.fileEventCh:
			switch req.kind {
			case "created", "updated", "deleted":
				broadcast(Event{Type: "file." + req.kind, Data: req.data})
			}

			now := time.Now()
			if now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				broadcast(Event{Type: "index.updated", Data: map[string]string{}})
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

// PublishFileEvent reports an on-disk change seen by the index watcher,
// followed by a throttled index.updated event. It matches
// index.EventCallback.
func (b *Broker) PublishFileEvent(kind, providerUID, uid string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileEventCh <- fileEventReq{kind: kind, data: ItemData{Provider: providerUID, UID: uid}}:
	case <-b.stopped:
	}
}

// ItemsLoaded implements manager.EventSink.
func (b *Broker) ItemsLoaded(p provider.Provider, notes, trash []models.Note) {
	b.Publish(Event{Type: "provider.loaded", Data: LoadedData{Provider: p.UID(), Notes: len(notes), Trash: len(trash)}})
}

// ItemEvent implements manager.EventSink. item-saved becomes item.saved.
func (b *Broker) ItemEvent(ev provider.Event, e provider.Entry) {
	b.Publish(Event{
		Type: strings.Replace(string(ev.Kind), "-", ".", 1),
		Data: ItemData{Provider: ev.Provider, UID: e.Note.UID(), Title: e.Note.Title()},
	})
}

// WatchStore publishes a store.changed event for every mutation of an
// exposed collection, so clients can re-render only the affected range.
// It returns the function that stops watching.
func (b *Broker) WatchStore(collection string, store *observable.List[provider.Entry]) func() {
	return store.Subscribe(func(c observable.Change) {
		b.Publish(Event{Type: "store.changed", Data: StoreData{
			Collection: collection,
			Position:   c.Position,
			Removed:    c.Removed,
			Added:      c.Added,
			Length:     store.Len(),
		}})
	})
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
