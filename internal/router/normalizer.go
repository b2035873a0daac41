package router

import "strings"

// Normalizer applies the outbound-message normalization rules of
// spec.md §4.1 and owns the suppression oracle.
type Normalizer struct {
	myCallsign string
	oracle     *SuppressionOracle
}

// NewNormalizer builds a Normalizer bound to the operator's own callsign.
func NewNormalizer(myCallsign string, r *Router) *Normalizer {
	n := &Normalizer{myCallsign: strings.ToUpper(strings.TrimSpace(myCallsign))}
	n.oracle = &SuppressionOracle{myCallsign: n.myCallsign, router: r}
	return n
}

// MyCallsign returns the configured operator callsign, upper-cased.
func (n *Normalizer) MyCallsign() string { return n.myCallsign }

// Oracle returns the suppression oracle bound to this normalizer.
func (n *Normalizer) Oracle() *SuppressionOracle { return n.oracle }

// Normalize trims and upper-cases destination fully; source is upper-cased
// only up to its first comma, since the radio appends the relay path to
// src. Message text is upper-cased only when it begins with "!" so command
// text is case-normalized while chat text is left alone.
func (n *Normalizer) Normalize(src, dst, text string) (normSrc, normDst, normText string) {
	normDst = strings.ToUpper(strings.TrimSpace(dst))

	src = strings.TrimSpace(src)
	if i := strings.IndexByte(src, ','); i >= 0 {
		normSrc = strings.ToUpper(src[:i]) + src[i:]
	} else {
		normSrc = strings.ToUpper(src)
	}

	if strings.HasPrefix(strings.TrimSpace(text), "!") {
		normText = strings.ToUpper(text)
	} else {
		normText = text
	}
	return
}
