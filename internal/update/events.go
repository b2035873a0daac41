package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event is one SSE frame the update runner streams: `log` events carry a
// phase tag and raw bootstrap output, `phase` events carry percent
// complete, `rollback` events mark a reversal in progress.
type Event struct {
	Kind         string `json:"kind"` // log | phase | rollback | result
	DeploymentID string `json:"deployment_id,omitempty"`
	Phase        string `json:"phase,omitempty"`
	Text         string `json:"text,omitempty"`
	Pct          int    `json:"pct,omitempty"`
}

// Broadcaster fans Events out to every connected /stream client, grounded
// on the same register/unregister/broadcast channel pattern used by the
// gateway's own SSE server (internal/httpapi).
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan Event]struct{})}
}

func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// ServeHTTP implements the `/stream` endpoint.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
			flusher.Flush()
		}
	}
}
