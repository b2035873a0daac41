package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/router"
)

// sendRequest is the single POST /api/send envelope (spec.md §4.5).
type sendRequest struct {
	Type   string `json:"type"`
	Src    string `json:"src,omitempty"`
	Dst    string `json:"dst"`
	Msg    string `json:"msg"`
	MAC    string `json:"MAC,omitempty"`
	BLEPin string `json:"BLE_Pin,omitempty"`
	Before int64  `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// handleSend implements POST /api/send: type selects behaviour —
// page_request fetches paginated history, command routes through the
// command engine, BLE publishes to ble_message, and the default publishes
// to udp_message (spec.md §4.5).
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Dst == "" {
		http.Error(w, "dst is required", http.StatusBadRequest)
		return
	}

	switch req.Type {
	case "page_request":
		s.handlePageRequest(w, r, req)
		return
	case "command":
		s.router.Publish("httpapi", router.TopicMeshMessage, model.Message{
			Src:  req.Src,
			Dst:  req.Dst,
			Text: req.Msg,
			Type: model.TypeMsg,
		})
	case "BLE":
		s.router.Publish("httpapi", router.TopicBLEMessage, map[string]string{
			"dst": req.Dst,
			"msg": req.Msg,
			"mac": req.MAC,
		})
	default:
		s.router.Publish("httpapi", router.TopicUDPMessage, model.Message{
			Src:  req.Src,
			Dst:  req.Dst,
			Text: req.Msg,
			Type: model.TypeMsg,
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handlePageRequest(w http.ResponseWriter, r *http.Request, req sendRequest) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	messages, err := s.store.MessagesPage(r.Context(), req.Dst, req.Src, req.Before, limit)
	if err != nil {
		http.Error(w, "page request failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
