// Package command implements the gateway's stateful command engine
// (spec.md §4.3): dedup, reception decision, abuse protection, throttling,
// parsing, execution, the ping-test state machine and the beacon
// scheduler. Following spec.md §9's "dynamic mixins -> composition" note,
// Engine owns its subcomponents as plain struct members rather than
// relying on dynamic dispatch.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/cmdgrammar"
	"github.com/DK5EN/mcapp-gateway/internal/metrics"
	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/router"
	"github.com/DK5EN/mcapp-gateway/internal/store"
	"github.com/DK5EN/mcapp-gateway/internal/weather"
)

// Responder abstracts "where a response goes": the mesh (udp_message),
// BLE, or a specific websocket client.
type Responder interface {
	RespondMesh(dst, text string)
	RespondWebsocketDirect(clientRef, text string)
	RespondWebsocketBroadcast(text string)
}

// Engine is the command engine (spec.md §4.3).
type Engine struct {
	log        *zap.Logger
	router     *router.Router
	store      *store.Store
	myCallsign string
	groupMode  bool // group-responses on/off, operator-configured
	admins     map[string]bool

	dedup    *dedupCache
	abuse    *abuseTracker
	throttle *throttleCache
	ping     *pingTracker
	beacons  *beaconScheduler

	weatherCache *weather.Cache
	weatherSvc   weather.Service

	registry map[string]Handler
	genID    func() uint32
}

// Handler executes one command and returns the reply text (or an error
// from the §7 taxonomy).
type Handler func(ctx context.Context, e *Engine, requester string, args map[string]string, positional []string) (string, error)

// New constructs the command engine and registers its handler table.
func New(log *zap.Logger, r *router.Router, st *store.Store, myCallsign string, admins []string, genID func() uint32) *Engine {
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[model.BaseCallsign(strings.ToUpper(a))] = true
	}

	e := &Engine{
		log:        log.Named("command"),
		router:     r,
		store:      st,
		myCallsign: strings.ToUpper(myCallsign),
		admins:     adminSet,
		dedup:      newDedupCache(5 * time.Minute),
		abuse:      newAbuseTracker(),
		throttle:   newThrottleCache(),
		ping:       newPingTracker(),
		beacons:    newBeaconScheduler(log, r),
		genID:      genID,
	}
	e.registry = defaultRegistry()

	r.Subscribe(router.TopicMeshMessage, e.onMessage)
	r.Subscribe(router.TopicBLENotification, e.onMessage)
	return e
}

// SetGroupMode toggles whether group-responses are honoured for
// non-admin requesters (spec.md §4.3 reception matrix).
func (e *Engine) SetGroupMode(on bool) { e.groupMode = on }

// SetWeather wires the weather cache and provider used by the wx/weather
// command (SPEC_FULL.md §4.8); both may be nil, in which case the command
// reports weather as unavailable.
func (e *Engine) SetWeather(cache *weather.Cache, svc weather.Service) {
	e.weatherCache = cache
	e.weatherSvc = svc
}

func (e *Engine) isAdmin(callsign string) bool {
	return e.admins[model.BaseCallsign(strings.ToUpper(callsign))]
}

func (e *Engine) onMessage(_ string, data any) {
	msg, ok := data.(model.Message)
	if !ok {
		return
	}
	e.observePingSignal(msg)
	if !cmdgrammar.IsCommand(msg.Text) {
		return
	}
	e.handleCommand(context.Background(), msg)
}

// observePingSignal watches every inbound message (not just commands) for
// the two signals a !ctcping test correlates against (spec.md §4.3): the
// node's own loopback of our outbound ping text carrying a trailing
// "{NNN" echo id, and an inbound ":ackNNN" reply from the ping target.
func (e *Engine) observePingSignal(msg model.Message) {
	if msg.Type != model.TypeMsg {
		return
	}
	if echoID, ok := cmdgrammar.ExtractEchoID(msg.Text); ok && msg.MsgID != nil {
		if pt := e.ping.findByPendingMsgID(*msg.MsgID); pt != nil {
			pt.resolveEcho(*msg.MsgID, echoID)
		}
	}
	if ackID, ok := cmdgrammar.ExtractAckID(msg.Text); ok {
		if pt := e.ping.findByTarget(msg.Src); pt != nil {
			pt.handleAck(ackID)
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, msg model.Message) {
	// Step 1: dedup by message id over a 5-minute window.
	if msg.MsgID != nil {
		if e.dedup.seen(*msg.MsgID) {
			return
		}
	}

	// Step 3: reception decision.
	name, rest := cmdgrammar.CommandName(msg.Text)
	tokens := cmdgrammar.Tokenize(rest)
	target, explicitTarget := cmdgrammar.ExtractTarget(name, tokens)

	decision := e.decide(msg.Src, msg.Dst, target, explicitTarget)
	if !decision.Execute {
		return
	}

	// Step 4: abuse check.
	if e.abuse.isBlocked(msg.Src) {
		if e.abuse.consumeCourtesyNotice(msg.Src) {
			e.reply(decision, "❌ you are temporarily blocked, try again later")
		}
		return
	}

	// Step 5: throttle.
	key := throttleKey(msg.Src, msg.Dst, name)
	if e.throttle.hit(name, key) {
		e.reply(decision, "❌ throttled, please wait")
		e.abuse.recordFailure(msg.Src)
		return
	}

	// Step 6: parse.
	args, positional, err := Parse(name, tokens)
	if err != nil {
		e.reply(decision, "❌ "+err.Error())
		e.abuse.recordFailure(msg.Src)
		metrics.CommandsExecutedTotal.WithLabelValues(strings.ToLower(name), "parse_error").Inc()
		return
	}

	handler, ok := e.registry[name]
	if !ok {
		e.reply(decision, "❌ unknown command")
		e.abuse.recordFailure(msg.Src)
		metrics.CommandsExecutedTotal.WithLabelValues(strings.ToLower(name), "unknown").Inc()
		return
	}

	// Step 7: execute.
	reply, err := handler(ctx, e, msg.Src, args, positional)
	if err != nil {
		e.reply(decision, "❌ "+err.Error())
		e.abuse.recordFailure(msg.Src)
		metrics.CommandsExecutedTotal.WithLabelValues(strings.ToLower(name), "error").Inc()
		return
	}
	metrics.CommandsExecutedTotal.WithLabelValues(strings.ToLower(name), "ok").Inc()
	if reply != "" {
		e.replyChunked(decision, reply)
	}
}

func throttleKey(src, dst, command string) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToUpper(src), strings.ToUpper(dst), strings.ToUpper(command))
}

func (e *Engine) reply(d receptionDecision, text string) {
	e.replyChunked(d, text)
}

// replyChunked sends text to the decision's response target, chunked to
// 140 bytes UTF-8 with at most 3 chunks and a 12s gap between chunks
// (spec.md §4.3).
func (e *Engine) replyChunked(d receptionDecision, text string) {
	chunks := ChunkResponse(text)
	for i, c := range chunks {
		out := c
		if len(chunks) > 1 {
			out = fmt.Sprintf("(%d/%d) %s", i+1, len(chunks), c)
		}
		e.sendTo(d, out)
		if i < len(chunks)-1 {
			time.Sleep(12 * time.Second)
		}
	}
}

func (e *Engine) sendTo(d receptionDecision, text string) {
	switch d.ResponseKind {
	case responseMesh:
		e.router.Publish("command", router.TopicUDPMessage, model.Message{
			Dst:  d.ResponseTarget,
			Text: text,
			Type: model.TypeMsg,
		})
	case responseDirectWebsocket:
		e.router.Publish("command", router.TopicWebsocketDirect, map[string]string{
			"client": d.ResponseTarget,
			"text":   text,
		})
	}
}

// NextMsgID exposes the injected id generator to handlers that need to
// synthesize outbound messages (e.g. ctcping).
func (e *Engine) NextMsgID() uint32 { return e.genID() }

// Shutdown cancels every active beacon task (spec.md §4.3/§5).
func (e *Engine) Shutdown() { e.beacons.stopAll() }
