// Package cmdgrammar holds the command-grammar primitives shared by the
// router's suppression oracle and the command engine: callsign matching,
// tokenization and target extraction (spec.md §4.3). It is kept separate
// from internal/command so the router can depend on it without importing
// the command engine itself.
package cmdgrammar

import (
	"regexp"
	"strings"
)

// TargetCallsignPattern is the callsign shape accepted as a command target:
// 3-8 alphanumerics containing at least one letter and one digit, with an
// optional "-N"/"-NN" SSID suffix.
var TargetCallsignPattern = callsignMatcher{shape: regexp.MustCompile(`^([A-Z0-9]{3,8})(-\d{1,2})?$`)}

// callsignMatcher pairs the shape regexp with the letter-and-digit check,
// which RE2 cannot express as a lookahead.
type callsignMatcher struct {
	shape *regexp.Regexp
}

// MatchString reports whether s (already upper-cased) is an accepted callsign.
func (m callsignMatcher) MatchString(s string) bool {
	sub := m.shape.FindStringSubmatch(s)
	if sub == nil {
		return false
	}
	return strings.ContainsAny(sub[1], "ABCDEFGHIJKLMNOPQRSTUVWXYZ") && strings.ContainsAny(sub[1], "0123456789")
}

// commandsWithoutTargets never carry a TARGET argument (spec.md §4.3).
var commandsWithoutTargets = map[string]bool{
	"GROUP": true,
	"KB":    true,
	"TOPIC": true,
}

// IsCommand reports whether text is a command invocation, i.e. begins with "!".
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "!")
}

// CommandName returns the upper-cased command word (without "!") from a raw
// command line, and the remaining argument string.
func CommandName(text string) (name string, rest string) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "!")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	name = strings.ToUpper(fields[0])
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))
	return name, rest
}

// Tokenize splits a command's argument string on whitespace.
func Tokenize(args string) []string {
	return strings.Fields(args)
}

// IsKeyValue reports whether a token has the "key:value" shape.
func IsKeyValue(token string) (key, value string, ok bool) {
	i := strings.IndexByte(token, ':')
	if i <= 0 {
		return "", "", false
	}
	return strings.ToUpper(token[:i]), token[i+1:], true
}

// ExtractTarget implements the target-extraction algorithm of spec.md §4.3:
//
//   - GROUP/KB/TOPIC never carry a target.
//   - A TARGET:X token found anywhere means explicit target X; X=LOCAL or
//     empty means explicit-local (no target, target=="").
//   - Otherwise scan right-to-left, skipping key:value tokens, for the
//     first token matching the callsign pattern.
//
// The returned bool reports whether a TARGET: token was explicitly present
// (even if it resolved to local), so callers can distinguish "no opinion"
// from "explicitly local".
func ExtractTarget(commandName string, tokens []string) (target string, explicit bool) {
	if commandsWithoutTargets[strings.ToUpper(commandName)] {
		return "", false
	}

	for _, tok := range tokens {
		key, value, ok := IsKeyValue(tok)
		if !ok || key != "TARGET" {
			continue
		}
		value = strings.ToUpper(strings.TrimSpace(value))
		if value == "" || value == "LOCAL" {
			return "", true
		}
		return value, true
	}

	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if _, _, ok := IsKeyValue(tok); ok {
			continue
		}
		if TargetCallsignPattern.MatchString(strings.ToUpper(tok)) {
			return strings.ToUpper(tok), false
		}
	}
	return "", false
}

// trailingDigits parses a trailing run of ASCII digits from s, returning
// them as an int and whether any were found.
func trailingDigits(s string) (int, bool) {
	n := 0
	found := false
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		found = true
	}
	return n, found
}

// ExtractEchoID returns the trailing "{NNN" echo id on an outgoing
// message's text (spec.md §4.3's ping-test echo step), if present.
func ExtractEchoID(text string) (int, bool) {
	idx := strings.LastIndexByte(text, '{')
	if idx < 0 {
		return 0, false
	}
	return trailingDigits(text[idx+1:])
}

// ExtractAckID returns the trailing ":ackNNN" id from an inbound message's
// text (spec.md §4.3's ping-test ACK step), if present.
func ExtractAckID(text string) (int, bool) {
	idx := strings.Index(text, ":ack")
	if idx < 0 {
		return 0, false
	}
	return trailingDigits(text[idx+len(":ack"):])
}
