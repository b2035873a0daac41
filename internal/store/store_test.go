package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), zap.NewNop(), filepath.Join(dir, "messages.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)
	return s
}

func msgID(v uint32) *uint32 { return &v }

func TestStoreMessageDedupWithin20Minutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := model.Message{
		MsgID:       msgID(42),
		Src:         "DK5EN-1",
		Dst:         "20",
		Text:        "hello",
		Type:        model.TypeMsg,
		TimestampMS: 1_000_000,
	}
	if err := s.StoreMessage(ctx, base); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	dup := base
	dup.TimestampMS += 5 * 60 * 1000 // 5 minutes later, same msg_id
	if err := s.StoreMessage(ctx, dup); err != nil {
		t.Fatalf("StoreMessage dup: %v", err)
	}

	var count int
	if err := s.readDB.Get(&count, `SELECT COUNT(*) FROM messages WHERE msg_id = 42`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for duplicate msg_id within window, got %d", count)
	}
}

func TestStoreMessageConversationKeySymmetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := model.Message{MsgID: msgID(1), Src: "DK5EN-1", Dst: "OE5HWN-12", Text: "hi", Type: model.TypeMsg, TimestampMS: 1000}
	b := model.Message{MsgID: msgID(2), Src: "OE5HWN-12", Dst: "DK5EN-1", Text: "hey", Type: model.TypeMsg, TimestampMS: 2000}

	if err := s.StoreMessage(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreMessage(ctx, b); err != nil {
		t.Fatal(err)
	}

	var keys []string
	if err := s.readDB.Select(&keys, `SELECT DISTINCT conversation_key FROM messages ORDER BY conversation_key`); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected a single symmetric conversation key, got %v", keys)
	}
}

func TestFilterDropsKnownNoise(t *testing.T) {
	cases := []model.Message{
		{Text: "{CET something"},
		{SrcType: "BLE", Text: "x"},
		{Text: "response"},
		{SrcType: "TEST", Text: "x"},
		{Text: "-- invalid character --"},
		{Text: "reboot: No core dump found"},
	}
	for _, m := range cases {
		if drop, _ := shouldFilterMessage(m); !drop {
			t.Fatalf("expected message to be filtered: %+v", m)
		}
	}
}

func TestBucketAccumulatorFlushesOnNewerBucket(t *testing.T) {
	a := newBucketAccumulator()

	if flushed := a.observe("DK5EN-1", -80, 5, 0); flushed != nil {
		t.Fatal("first sample should not flush")
	}
	if flushed := a.observe("DK5EN-1", -82, 4, 60_000); flushed != nil {
		t.Fatal("sample in same bucket should not flush")
	}
	flushed := a.observe("DK5EN-1", -70, 6, int64(model.BucketSeconds)*1000+1)
	if flushed == nil {
		t.Fatal("sample in a newer bucket should flush the pending bucket")
	}
	if flushed.Count != 2 {
		t.Fatalf("expected flushed bucket to contain 2 samples, got %d", flushed.Count)
	}
}

func TestPositionByCallsignReturnsUpsertedRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPosition(ctx, PositionUpdate{Callsign: "DK5EN-1", Lat: 48.2, Lon: 11.6, TimestampMS: 1000}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.PositionByCallsign(ctx, "DK5EN-1"); err != nil {
		t.Fatalf("expected a row for a beaconed callsign: %v", err)
	}
	if _, err := s.PositionByCallsign(ctx, "UNKNOWN-1"); err == nil {
		t.Fatal("expected an error for a callsign with no recorded position")
	}
}

func TestSearchMessagesMatchesCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreMessage(ctx, model.Message{
		MsgID: msgID(1), Src: "DK5EN-1", Dst: "OE5HWN-12", Text: "Weather looks Stormy today",
		Type: model.TypeMsg, TimestampMS: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchMessages(ctx, "stormy")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one case-insensitive match, got %d", len(hits))
	}

	if hits, err := s.SearchMessages(ctx, "nonexistent"); err != nil || len(hits) != 0 {
		t.Fatalf("expected no matches, got %d hits (err=%v)", len(hits), err)
	}
}

func TestMHeardStatsRequiresMinimumDatapoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MinDatapointsForStats-1; i++ {
		if err := s.insertSignalBucket(ctx, model.SignalBucket{
			Callsign: "DK5EN-1", BucketStart: int64(i) * model.BucketSeconds * 1000, Count: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.MHeardStats(ctx, 0, int64(MinDatapointsForStats)*model.BucketSeconds*1000, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stats["DK5EN-1"]; ok {
		t.Fatal("callsign with fewer than the minimum datapoints should be excluded")
	}
}
