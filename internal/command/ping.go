package command

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type pingState string

const (
	pingRunning   pingState = "running"
	pingCompleting pingState = "completing"
	pingCompleted pingState = "completed"
	pingTimeout   pingState = "timeout"
	pingError     pingState = "error"
)

const pingPerPingTimeout = 30 * time.Second

// pingResult is one individual ping's outcome.
type pingResult struct {
	seq      int
	sentAt   time.Time
	ackedAt  time.Time
	acked    bool
	rttMS    int64
}

// pingTest tracks one in-flight !ctcping run.
type pingTest struct {
	mu         sync.Mutex
	testID     string
	target     string
	requester  string
	repeat     int
	state      pingState
	results    map[int]*pingResult
	echoToSeq  map[int]int    // three-digit echo/ack id -> sequence number
	pendingMsg map[uint32]int // outbound msg id awaiting its mesh echo -> sequence number
	completed  bool           // idempotency guard: exactly one summary per test
}

// pingTracker owns every active ping test, keyed by test id
// (target + start time per spec.md §4.3).
type pingTracker struct {
	mu    sync.Mutex
	tests map[string]*pingTest
}

func newPingTracker() *pingTracker {
	return &pingTracker{tests: make(map[string]*pingTest)}
}

func newTestID(target string, start time.Time) string {
	return fmt.Sprintf("%s-%d", target, start.UnixNano())
}

func (t *pingTracker) start(target, requester string, repeat int) *pingTest {
	pt := &pingTest{
		testID:     newTestID(target, time.Now()),
		target:     target,
		requester:  requester,
		repeat:     repeat,
		state:      pingRunning,
		results:    make(map[int]*pingResult),
		echoToSeq:  make(map[int]int),
		pendingMsg: make(map[uint32]int),
	}
	t.mu.Lock()
	t.tests[pt.testID] = pt
	t.mu.Unlock()
	return pt
}

func (t *pingTracker) findByTarget(target string) *pingTest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *pingTest
	for _, pt := range t.tests {
		if pt.target == target && pt.state == pingRunning {
			best = pt
		}
	}
	return best
}

// findByPendingMsgID locates the running test that sent msgID and is still
// waiting for its mesh echo, used by the engine's inbound echo watcher.
func (t *pingTracker) findByPendingMsgID(msgID uint32) *pingTest {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pt := range t.tests {
		if pt.hasPendingMsgID(msgID) {
			return pt
		}
	}
	return nil
}

func (t *pingTracker) remove(testID string) {
	t.mu.Lock()
	delete(t.tests, testID)
	t.mu.Unlock()
}

// recordEcho maps the three-digit echo id (assigned once the radio echoes
// our outbound text back) to sequence seq, and starts that sequence's
// timing at the echo if no result exists for it yet.
func (pt *pingTest) recordEcho(seq, echoID int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.echoToSeq[echoID] = seq
	if pt.results[seq] == nil {
		pt.results[seq] = &pingResult{seq: seq, sentAt: time.Now()}
	}
}

// awaitEcho registers the outbound msgID used to send sequence seq so the
// engine's inbound watcher can later match the node's own loopback of that
// text (spec.md §4.3 step (c): "watches for an echo... this also yields
// the ACK id").
func (pt *pingTest) awaitEcho(msgID uint32, seq int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pendingMsg[msgID] = seq
}

func (pt *pingTest) hasPendingMsgID(msgID uint32) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	_, ok := pt.pendingMsg[msgID]
	return ok
}

// resolveEcho consumes the pending send for msgID (if any) and records its
// echo id, returning whether a match was found.
func (pt *pingTest) resolveEcho(msgID uint32, echoID int) bool {
	pt.mu.Lock()
	seq, ok := pt.pendingMsg[msgID]
	if ok {
		delete(pt.pendingMsg, msgID)
	}
	pt.mu.Unlock()
	if !ok {
		return false
	}
	pt.recordEcho(seq, echoID)
	return true
}

// handleAck matches an inbound ACK by its three-digit id recorded at echo
// time; it is idempotent — a duplicate ACK for an already-acked sequence
// is ignored (spec.md §4.3 / §8 invariant 7).
func (pt *pingTest) handleAck(ackID int) (matched bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	seq, ok := pt.echoToSeq[ackID]
	if !ok {
		return false
	}
	r := pt.results[seq]
	if r == nil || r.acked {
		return false // already processed: idempotency guard
	}
	r.acked = true
	r.ackedAt = time.Now()
	r.rttMS = r.ackedAt.Sub(r.sentAt).Milliseconds()
	return true
}

// checkCompletion reports whether every sequence has concluded (acked or
// timed out) and, if so, marks the test completed exactly once.
func (pt *pingTest) checkCompletion() (done bool, alreadyCompleted bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.completed {
		return true, true
	}
	if len(pt.results) < pt.repeat {
		return false, false
	}
	for _, r := range pt.results {
		if !r.acked && time.Since(r.sentAt) < pingPerPingTimeout {
			return false, false
		}
	}
	pt.completed = true
	pt.state = pingCompleted
	return true, false
}

// summary computes loss% and min/avg/max RTT across every recorded ping.
func (pt *pingTest) summary() (lossPct float64, minRTT, avgRTT, maxRTT int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	seqs := make([]int, 0, len(pt.results))
	for s := range pt.results {
		seqs = append(seqs, s)
	}
	sort.Ints(seqs)

	var rtts []int64
	acked := 0
	for _, s := range seqs {
		r := pt.results[s]
		if r.acked {
			acked++
			rtts = append(rtts, r.rttMS)
		}
	}
	lossPct = 100 * float64(pt.repeat-acked) / float64(pt.repeat)
	if len(rtts) == 0 {
		return lossPct, 0, 0, 0
	}
	minRTT, maxRTT = rtts[0], rtts[0]
	var sum int64
	for _, v := range rtts {
		sum += v
		if v < minRTT {
			minRTT = v
		}
		if v > maxRTT {
			maxRTT = v
		}
	}
	avgRTT = sum / int64(len(rtts))
	return lossPct, minRTT, avgRTT, maxRTT
}
