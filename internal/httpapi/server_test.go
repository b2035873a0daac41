package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/command"
	"github.com/DK5EN/mcapp-gateway/internal/router"
	"github.com/DK5EN/mcapp-gateway/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), zap.NewNop(), filepath.Join(dir, "messages.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	go st.Run(ctx)
	t.Cleanup(cancel)

	r := router.New(zap.NewNop(), "DK5EN-1")
	genID := func() uint32 { return 1 }
	cmd := command.New(zap.NewNop(), r, st, "DK5EN-1", nil, genID)

	return New(zap.NewNop(), r, st, cmd)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := body["ble_status"]; !ok {
		t.Error("expected a ble_status field")
	}
}

func TestAuthedRejectsMissingAPIKey(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(context.Background(), zap.NewNop(), filepath.Join(dir, "messages.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	go st.Run(ctx)
	t.Cleanup(cancel)

	r := router.New(zap.NewNop(), "DK5EN-1")
	cmd := command.New(zap.NewNop(), r, st, "DK5EN-1", nil, func() uint32 { return 1 })
	s := New(zap.NewNop(), r, st, cmd, WithAPIKey("secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/read_counts", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/read_counts", nil)
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	s.routes().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with correct key", rec2.Code)
	}
}

func TestHandleReadCountsSetThenGet(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"dst": "OE5HWN-12", "count": 3})
	postReq := httptest.NewRequest(http.MethodPost, "/api/read_counts", jsonBody(body))
	postRec := httptest.NewRecorder()
	s.routes().ServeHTTP(postRec, postReq)
	if postRec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, want 200: %s", postRec.Code, postRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/read_counts", nil)
	getRec := httptest.NewRecorder()
	s.routes().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getRec.Code)
	}
	var counts map[string]int
	if err := json.Unmarshal(getRec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if counts["OE5HWN-12"] != 3 {
		t.Errorf("counts[OE5HWN-12] = %d, want 3", counts["OE5HWN-12"])
	}
}

func TestHandleSendRequiresDst(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"msg": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/send", jsonBody(body))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSendPublishesUDPMessage(t *testing.T) {
	s := newTestServer(t)
	var got any
	s.router.Subscribe(router.TopicUDPMessage, func(_ string, data any) { got = data })

	body, _ := json.Marshal(map[string]any{"dst": "OE5HWN-12", "msg": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/send", jsonBody(body))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if got == nil {
		t.Fatal("expected the router to have dispatched a udp_message")
	}
}

func jsonBody(b []byte) *bytes.Reader { return bytes.NewReader(b) }
