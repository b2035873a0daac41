package command

import "testing"

func TestPingTrackerStartAndFindByTarget(t *testing.T) {
	tr := newPingTracker()
	pt := tr.start("OE5HWN-12", "DK5EN-1", 3)

	if found := tr.findByTarget("OE5HWN-12"); found != pt {
		t.Fatalf("expected findByTarget to return the running test")
	}
	if found := tr.findByTarget("NOTFOUND"); found != nil {
		t.Fatalf("expected nil for unknown target, got %+v", found)
	}
}

func TestPingHandleAckIsIdempotent(t *testing.T) {
	pt := &pingTest{
		repeat:    1,
		results:   make(map[int]*pingResult),
		echoToSeq: make(map[int]int),
	}
	pt.recordEcho(1, 42)

	if !pt.handleAck(42) {
		t.Fatal("expected first ACK to match")
	}
	if pt.handleAck(42) {
		t.Fatal("expected duplicate ACK to be ignored")
	}
}

func TestPingHandleAckUnknownEchoID(t *testing.T) {
	pt := &pingTest{
		repeat:    1,
		results:   make(map[int]*pingResult),
		echoToSeq: make(map[int]int),
	}
	if pt.handleAck(99) {
		t.Fatal("expected no match for an echo id never recorded")
	}
}

func TestPingCheckCompletionWaitsForAllSequences(t *testing.T) {
	pt := &pingTest{
		repeat:    2,
		results:   make(map[int]*pingResult),
		echoToSeq: make(map[int]int),
	}
	pt.recordEcho(1, 11)
	pt.recordEcho(2, 12)
	pt.handleAck(11)

	if done, _ := pt.checkCompletion(); done {
		t.Fatal("expected incomplete while one sequence is still in flight within its timeout")
	}

	pt.handleAck(12)
	done, already := pt.checkCompletion()
	if !done || already {
		t.Fatalf("expected first completion to report done=true, already=false; got %v, %v", done, already)
	}

	done, already = pt.checkCompletion()
	if !done || !already {
		t.Fatalf("expected subsequent calls to report already completed; got %v, %v", done, already)
	}
}

func TestPingSummaryComputesLossAndRTT(t *testing.T) {
	pt := &pingTest{
		repeat:    2,
		results:   make(map[int]*pingResult),
		echoToSeq: make(map[int]int),
	}
	pt.results[1] = &pingResult{seq: 1, acked: true, rttMS: 100}
	pt.results[2] = &pingResult{seq: 2, acked: false}

	lossPct, minRTT, avgRTT, maxRTT := pt.summary()
	if lossPct != 50 {
		t.Errorf("lossPct = %v, want 50", lossPct)
	}
	if minRTT != 100 || avgRTT != 100 || maxRTT != 100 {
		t.Errorf("rtt stats = %d/%d/%d, want 100/100/100", minRTT, avgRTT, maxRTT)
	}
}

func TestPingSummaryAllLost(t *testing.T) {
	pt := &pingTest{repeat: 2, results: make(map[int]*pingResult), echoToSeq: make(map[int]int)}
	pt.results[1] = &pingResult{seq: 1}
	pt.results[2] = &pingResult{seq: 2}

	lossPct, minRTT, avgRTT, maxRTT := pt.summary()
	if lossPct != 100 {
		t.Errorf("lossPct = %v, want 100", lossPct)
	}
	if minRTT != 0 || avgRTT != 0 || maxRTT != 0 {
		t.Errorf("expected zeroed rtt stats when nothing acked, got %d/%d/%d", minRTT, avgRTT, maxRTT)
	}
}
