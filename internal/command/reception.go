package command

import "github.com/DK5EN/mcapp-gateway/internal/model"

type responseKind int

const (
	responseNone responseKind = iota
	responseMesh
	responseDirectWebsocket
)

type receptionDecision struct {
	Execute        bool
	ResponseKind   responseKind
	ResponseTarget string
}

// decide implements the reception-decision matrix of spec.md §4.3: for
// every combination of (source-is-me, destination class, extracted
// target, group-responses flag, admin flag) it decides whether to
// execute the command and where the reply goes.
func (e *Engine) decide(src, dst, target string, explicitTarget bool) receptionDecision {
	srcIsMe := model.BaseCallsign(src) == model.BaseCallsign(e.myCallsign)
	targetIsNoneOrMe := target == "" || model.BaseCallsign(target) == model.BaseCallsign(e.myCallsign)

	if srcIsMe {
		if !targetIsNoneOrMe {
			// Remote intent: this is the suppression oracle's job upstream
			// to route to mesh; the engine itself never executes it.
			return receptionDecision{Execute: false}
		}
		// Self-originated, diverted locally: reply goes to the operator's
		// own browser client, never back onto the wire (spec.md §8 scenario 1).
		return receptionDecision{Execute: true, ResponseKind: responseDirectWebsocket, ResponseTarget: dst}
	}

	if model.IsGroupDst(dst) {
		if !targetIsNoneOrMe {
			return receptionDecision{Execute: false}
		}
		if e.groupMode {
			return receptionDecision{Execute: true, ResponseKind: responseMesh, ResponseTarget: dst}
		}
		if e.isAdmin(src) {
			return receptionDecision{Execute: true, ResponseKind: responseMesh, ResponseTarget: dst}
		}
		return receptionDecision{Execute: false}
	}

	// Direct message to me.
	if model.BaseCallsign(dst) == model.BaseCallsign(e.myCallsign) {
		if !targetIsNoneOrMe {
			return receptionDecision{Execute: false}
		}
		return receptionDecision{Execute: true, ResponseKind: responseMesh, ResponseTarget: src}
	}

	// Neither self-originated, nor directed at me, nor a group: not ours.
	return receptionDecision{Execute: false}
}
