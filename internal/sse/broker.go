// Package sse implements a Server-Sent Events broker for loader and import updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventChunkLoaded     = "chunk.loaded"
	EventLevelProgress   = "level.progress"
	EventImportCompleted = "import.completed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ChunkLoaded is the payload of chunk.loaded.
type ChunkLoaded struct {
	Level    string  `json:"level"`
	Chunk    int     `json:"chunk"`
	Progress float64 `json:"progress"`
}

// LevelProgress is the payload of level.progress.
type LevelProgress struct {
	Level    string  `json:"level"`
	Progress float64 `json:"progress"`
}

// ImportCompleted is the payload of import.completed.
type ImportCompleted struct {
	Source string `json:"source"`
	Words  int    `json:"words"`
	Tags   int    `json:"tags"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns mutable state (clients and per-level
// progress throttle timestamps). Public methods talk to the loop over
// channels.
type Broker struct {
	progressMin time.Duration
	keepAlive   time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	chunkCh       chan ChunkLoaded
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

const (
	clientRetry      = 3 * time.Second
	defaultKeepAlive = 15 * time.Second
)

// NewBroker creates a broker that emits level.progress at most once per
// progressThrottle for each level, plus always on completion. New
// subscribers first receive the latest progress of every level seen so far.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 2 * time.Second
	}

	b := &Broker{
		progressMin:   progressThrottle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		chunkCh:       make(chan ChunkLoaded, 256),
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
	lastEmit := make(map[string]time.Time)
	// Latest progress per level, replayed to new subscribers.
	progress := make(map[string]float64)
	var seq uint64

	frame := func(event Event) []byte {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return nil
		}
		seq++
		return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
	}

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; drop rather than block the loop.
		}
	}

	broadcast := func(event Event) {
		raw := frame(event)
		if raw == nil {
			return
		}
		for ch := range clients {
			send(ch, raw)
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
			levels := make([]string, 0, len(progress))
			for l := range progress {
				levels = append(levels, l)
			}
			sort.Strings(levels)
			for _, l := range levels {
				if raw := frame(Event{Type: EventLevelProgress, Data: LevelProgress{Level: l, Progress: progress[l]}}); raw != nil {
					send(ch, raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case ev := <-b.chunkCh:
			broadcast(Event{Type: EventChunkLoaded, Data: ev})

			progress[ev.Level] = ev.Progress
			now := time.Now()
			if ev.Progress >= 100 || now.Sub(lastEmit[ev.Level]) >= b.progressMin {
				lastEmit[ev.Level] = now
				broadcast(Event{Type: EventLevelProgress, Data: LevelProgress{Level: ev.Level, Progress: ev.Progress}})
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

// PublishChunkLoaded publishes chunk.loaded and a throttled level.progress.
func (b *Broker) PublishChunkLoaded(level string, chunk int, progress float64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.chunkCh <- ChunkLoaded{Level: level, Chunk: chunk, Progress: progress}:
	case <-b.stopped:
	}
}

// PublishImport publishes import.completed.
func (b *Broker) PublishImport(source string, words, tags int) {
	b.Publish(Event{Type: EventImportCompleted, Data: ImportCompleted{Source: source, Words: words, Tags: tags}})
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
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", clientRetry.Milliseconds())
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	keepAlive := time.NewTicker(b.keepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
