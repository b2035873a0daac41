package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/DK5EN/mcapp-gateway/internal/update"
)

// handleUpdateCheck reports whether an update is already running and the
// outcome of the last one, so the UI can resume a progress view after a
// page reload (spec.md §4.7).
func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.updateRun
	last := s.lastResult
	s.mu.RUnlock()

	resp := map[string]any{"running": running}
	if last != nil {
		resp["last_result"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateStart launches one update attempt in the background and
// returns immediately; progress is observed on /api/update/stream
// (spec.md §4.7).
func (s *Server) handleUpdateStart(w http.ResponseWriter, r *http.Request) {
	if s.updateController == nil {
		http.Error(w, "update controller not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Version string `json:"version"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Version == "" {
		body.Version = "unspecified"
	}

	s.mu.Lock()
	if s.updateRun {
		s.mu.Unlock()
		http.Error(w, "an update is already running", http.StatusConflict)
		return
	}
	s.updateRun = true
	s.mu.Unlock()

	go func() {
		result := s.updateController.Run(context.Background(), body.Version)
		s.mu.Lock()
		s.updateRun = false
		s.lastResult = &result
		s.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleUpdateRollback repoints `current` at the first non-active slot
// whose metadata reports it healthy. It only swaps the symlink: it does
// not restore an /etc snapshot, restart services or run health checks.
func (s *Server) handleUpdateRollback(w http.ResponseWriter, r *http.Request) {
	if s.updateLayout == nil {
		http.Error(w, "update layout not configured", http.StatusServiceUnavailable)
		return
	}
	active, err := s.updateLayout.ActiveSlot()
	if err != nil {
		http.Error(w, "cannot resolve active slot", http.StatusInternalServerError)
		return
	}
	metas, err := s.updateLayout.AllMeta()
	if err != nil {
		http.Error(w, "cannot read slot metadata", http.StatusInternalServerError)
		return
	}

	var target *update.SlotMeta
	for i := range metas {
		if metas[i].SlotID != active && metas[i].Status == update.SlotHealthy {
			m := metas[i]
			target = &m
			break
		}
	}
	if target == nil {
		http.Error(w, "no healthy alternate slot to roll back to", http.StatusConflict)
		return
	}
	if err := s.updateLayout.SwapCurrent(target.SlotID); err != nil {
		http.Error(w, "swap failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rolled_back", "active_slot": target.SlotID})
}

// handleUpdateSlots dumps the metadata for every deployment slot.
func (s *Server) handleUpdateSlots(w http.ResponseWriter, r *http.Request) {
	if s.updateLayout == nil {
		http.Error(w, "update layout not configured", http.StatusServiceUnavailable)
		return
	}
	metas, err := s.updateLayout.AllMeta()
	if err != nil {
		http.Error(w, "cannot read slot metadata", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, metas)
}
