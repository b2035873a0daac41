package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const ssePingInterval = 30 * time.Second

// sseFrame is one `event: <kind>\ndata: <json>\n\n` frame.
type sseFrame struct {
	kind string
	data any
}

// client is one connected browser's outbound queue (spec.md §4.5/§5:
// "SSE per-client queues are FIFO").
type client struct {
	queue chan sseFrame
}

// hub fans frames out to every connected SSE client.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) register() *client {
	c := &client{queue: make(chan sseFrame, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.queue)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(kind string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.queue <- sseFrame{kind: kind, data: data}:
		default:
			// slow client: drop rather than block the publisher, since the
			// router delivers to its subscribers one after another.
		}
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleEvents implements GET /events: on open it sends, in order, a
// connected frame, the smart-initial snapshot, the conversation summary,
// persisted UI state, and the cached BLE status + register dump, then
// drains the client's queue with a 30s idle ping (spec.md §4.5).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	c := s.hub.register()
	defer s.hub.unregister(c)

	if err := writeFrame(w, flusher, "connected", map[string]any{"server_time_ms": time.Now().UnixMilli()}); err != nil {
		return
	}

	snapshot, err := s.store.SmartInitialSnapshot(ctx)
	if err != nil {
		s.log.Error("smart initial snapshot failed", zapErr(err))
	} else if err := writeFrame(w, flusher, "smart_initial", snapshot); err != nil {
		return
	}

	if summary, err := s.store.ConversationSummary(ctx); err == nil {
		writeFrame(w, flusher, "summary", summary)
	}

	if rc, err := s.store.GetReadCounts(ctx); err == nil {
		writeFrame(w, flusher, "read_counts", rc)
	}
	if hd, err := s.store.GetHiddenDestinations(ctx); err == nil {
		writeFrame(w, flusher, "hidden_destinations", hd)
	}
	if bt, err := s.store.GetBlockedTexts(ctx); err == nil {
		writeFrame(w, flusher, "blocked_texts", bt)
	}
	if mh, err := s.store.GetSidebarOrder(ctx, "mheard"); err == nil {
		writeFrame(w, flusher, "mheard_sidebar", mh)
	}
	if wx, err := s.store.GetSidebarOrder(ctx, "wx"); err == nil {
		writeFrame(w, flusher, "wx_sidebar", wx)
	}

	writeFrame(w, flusher, "ble_status", s.bleStatus())
	writeFrame(w, flusher, "ble_registers", s.bleRegisters())

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeFrame(w, flusher, "ping", map[string]int64{"t": time.Now().UnixMilli()}); err != nil {
				return
			}
		case frame, ok := <-c.queue:
			if !ok {
				return
			}
			if err := writeFrame(w, flusher, frame.kind, frame.data); err != nil {
				return
			}
		}
	}
}
