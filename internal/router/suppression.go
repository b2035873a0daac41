package router

import (
	"strings"

	"github.com/DK5EN/mcapp-gateway/internal/cmdgrammar"
	"github.com/DK5EN/mcapp-gateway/internal/model"
)

// SuppressionOracle decides whether an outbound, self-originated command
// should be sent to the mesh or diverted to local execution
// (spec.md §4.1, rules 1-7).
type SuppressionOracle struct {
	myCallsign string
	router     *Router
}

// Decide applies the seven ordered rules from spec.md §4.1 to an outbound
// message. suppress==true means "execute locally, do not transmit".
func (o *SuppressionOracle) Decide(src, dst, text string) (suppress bool) {
	// Rule 1: source must be me.
	if model.BaseCallsign(strings.ToUpper(src)) != model.BaseCallsign(o.myCallsign) {
		return false
	}
	// Rule 2: payload must be a command.
	if !cmdgrammar.IsCommand(text) {
		return false
	}
	// Rule 3: invalid destination is always suppressed.
	if model.IsBroadcastDst(dst) {
		return true
	}

	name, rest := cmdgrammar.CommandName(text)
	target, _ := cmdgrammar.ExtractTarget(name, cmdgrammar.Tokenize(rest))

	// Rule 5: no target -> suppress.
	if target == "" {
		return true
	}
	// Rule 6: target is me -> suppress.
	if model.BaseCallsign(target) == model.BaseCallsign(o.myCallsign) {
		return true
	}
	// Rule 7: target is someone else -> do not suppress.
	return false
}

// SynthesizeMeshMessage builds a mesh-message record for a command that
// Decide kept local, shaped as if it had arrived from the wire and tagged
// as node-originated. The Router's Publish path calls neither Decide nor
// this method.
func (o *SuppressionOracle) SynthesizeMeshMessage(src, dst, text string, timestampMS int64, genID func() uint32) model.Message {
	id := genID()
	return model.Message{
		MsgID:           &id,
		Src:             src,
		Dst:             dst,
		Text:            text,
		Type:            model.TypeMsg,
		TimestampMS:     timestampMS,
		SrcType:         model.TransportNode,
		ConversationKey: model.ConversationKey(src, dst),
	}
}
