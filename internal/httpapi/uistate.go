package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DK5EN/mcapp-gateway/internal/store"
)

func (s *Server) handleReadCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		counts, err := s.store.GetReadCounts(ctx)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, counts)
		return
	}

	var body struct {
		Dst    string `json:"dst"`
		Count  int    `json:"count"`
		Counts map[string]int `json:"counts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Counts != nil {
		if err := s.store.ReplaceReadCounts(ctx, body.Counts); err != nil {
			http.Error(w, "replace failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if body.Dst == "" {
		http.Error(w, "dst is required", http.StatusBadRequest)
		return
	}
	if err := s.store.SetReadCount(ctx, body.Dst, body.Count); err != nil {
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHiddenDestinations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		dsts, err := s.store.GetHiddenDestinations(ctx)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, dsts)
		return
	}

	var body struct {
		Destinations []string `json:"destinations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.store.ReplaceHiddenDestinations(ctx, body.Destinations); err != nil {
		http.Error(w, "replace failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlockedTexts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		patterns, err := s.store.GetBlockedTexts(ctx)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, patterns)
		return
	}

	var body struct {
		Patterns []string `json:"patterns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.store.ReplaceBlockedTexts(ctx, body.Patterns); err != nil {
		http.Error(w, "replace failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSidebar returns a handler bound to one sidebar kind ("mheard" or
// "wx"), shared by the two sidebar-ordering endpoints of spec.md §4.5.
func (s *Server) handleSidebar(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method == http.MethodGet {
			order, err := s.store.GetSidebarOrder(ctx, kind)
			if err != nil {
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, order)
			return
		}

		var order store.SidebarOrder
		if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.store.SetSidebarOrder(ctx, kind, order); err != nil {
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
