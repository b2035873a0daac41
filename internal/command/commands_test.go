package command

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/router"
	"github.com/DK5EN/mcapp-gateway/internal/store"
)

func newStoreTestEngine(t *testing.T) *Engine {
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
	return New(zap.NewNop(), r, st, "DK5EN-1", nil, func() uint32 { return 1 })
}

func TestCmdPosReportsNotYetBeaconedForUnknownCallsign(t *testing.T) {
	e := newStoreTestEngine(t)
	reply, err := cmdPos(context.Background(), e, "DK5EN-1", nil, []string{"OE5HWN-12"})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "position lookup for OE5HWN-12: not yet beaconed" {
		t.Errorf("reply = %q", reply)
	}
}

func TestCmdPosReportsStoredPosition(t *testing.T) {
	e := newStoreTestEngine(t)
	ctx := context.Background()
	if err := e.store.StoreMessage(ctx, model.Message{
		Src: "OE5HWN-12", Dst: "20", Type: model.TypePos, TimestampMS: 1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.store.UpsertPosition(ctx, store.PositionUpdate{
		Callsign: "OE5HWN-12", Lat: 48.2, Lon: 16.3, TimestampMS: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	reply, err := cmdPos(ctx, e, "DK5EN-1", nil, []string{"OE5HWN-12"})
	if err != nil {
		t.Fatal(err)
	}
	if reply == "position lookup for OE5HWN-12: not yet beaconed" {
		t.Errorf("expected a real position reply, got placeholder: %q", reply)
	}
}

func TestCmdUserinfoDefaultsToRequester(t *testing.T) {
	e := newStoreTestEngine(t)
	reply, err := cmdUserinfo(context.Background(), e, "dk5en-1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply != "userinfo for DK5EN-1: not yet tracked" {
		t.Errorf("reply = %q", reply)
	}
}

func TestCmdSearchRequiresATerm(t *testing.T) {
	e := newStoreTestEngine(t)
	if _, err := cmdSearch(context.Background(), e, "DK5EN-1", nil, nil); err == nil {
		t.Fatal("expected an error when search has no term")
	}
}

func TestCmdSearchFindsStoredMessage(t *testing.T) {
	e := newStoreTestEngine(t)
	ctx := context.Background()
	if err := e.store.StoreMessage(ctx, model.Message{
		MsgID: func() *uint32 { v := uint32(7); return &v }(),
		Src:   "OE5HWN-12", Dst: "DK5EN-1", Text: "weather looks stormy",
		Type: model.TypeMsg, TimestampMS: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	reply, err := cmdSearch(ctx, e, "DK5EN-1", nil, []string{"stormy"})
	if err != nil {
		t.Fatal(err)
	}
	if reply == "" {
		t.Fatal("expected a non-empty reply listing the matching message")
	}

	noHits, err := cmdSearch(ctx, e, "DK5EN-1", nil, []string{"nonexistent"})
	if err != nil {
		t.Fatal(err)
	}
	if noHits != `no messages matching "nonexistent"` {
		t.Errorf("reply = %q", noHits)
	}
}
