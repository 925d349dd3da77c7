package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Sink receives every published event on its own goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, event RecognitionEvent) error
	Close() error
}

type sinkWorker struct {
	sink Sink
	ch   chan RecognitionEvent
	done chan struct{}
}

// Hub broadcasts recognition events. Delivery is best effort: a listener or sink
// whose buffer is full misses the event.
type Hub struct {
	mu        sync.RWMutex
	listeners []chan RecognitionEvent
	sinks     []*sinkWorker
	closed    bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// AddListener adds an event listener.
func (h *Hub) AddListener() chan RecognitionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan RecognitionEvent, constants.EventChannelBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.listeners = append(h.listeners, ch)
	return ch
}

// RemoveListener removes and closes an event listener.
func (h *Hub) RemoveListener(ch chan RecognitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// AddSink starts forwarding events to s.
func (h *Hub) AddSink(s Sink) {
	w := &sinkWorker{
		sink: s,
		ch:   make(chan RecognitionEvent, constants.SinkBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.sinks = append(h.sinks, w)
	go w.run()
}

func (w *sinkWorker) run() {
	defer close(w.done)
	for event := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := w.sink.Write(ctx, event); err != nil {
			log.Printf("events: %s sink: %v", w.sink.Name(), err)
		}
		cancel()
	}
}

// Publish sends event to all listeners and sinks without blocking.
func (h *Hub) Publish(event RecognitionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, listener := range h.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
	for _, w := range h.sinks {
		select {
		case w.ch <- event:
		default:
			log.Printf("events: %s sink is behind, dropped event %s", w.sink.Name(), event.ID)
		}
	}
}

// Close disconnects all listeners, drains the sinks and closes them.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, ch := range h.listeners {
		close(ch)
	}
	h.listeners = nil
	sinks := h.sinks
	h.sinks = nil
	h.mu.Unlock()

	for _, w := range sinks {
		close(w.ch)
		<-w.done
		if err := w.sink.Close(); err != nil {
			log.Printf("events: closing %s sink: %v", w.sink.Name(), err)
		}
	}
}
