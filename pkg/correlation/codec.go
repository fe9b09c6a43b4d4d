// Package correlation carries conversation identity through Telegram, which
// has no notion of a conversation inside a group chat. The ref rides in the
// text of every relayed message and in the callback data of every button.
package correlation

import (
	"errors"
	"regexp"
	"strings"
)

// RefLabel prefixes the ref line in relayed messages. Changing it orphans
// replies to messages sent before the change.
const RefLabel = "🆔 Chat ID: "

// MaxRefLen leaves room for the longest action token inside Telegram's
// 64-byte callback_data limit.
const MaxRefLen = 48

var (
	ErrInvalidRef = errors.New("invalid conversation ref")

	refPattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	linePattern = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(RefLabel) + `([A-Za-z0-9-]+)\r?$`)
)

// ValidRef reports whether ref can be embedded and later extracted unchanged.
func ValidRef(ref string) bool {
	return len(ref) > 0 && len(ref) <= MaxRefLen && refPattern.MatchString(ref)
}

// Embed renders the ref line that Extract recognizes.
func Embed(ref string) (string, error) {
	if !ValidRef(ref) {
		return "", ErrInvalidRef
	}
	return RefLabel + ref, nil
}

// Extract recovers the ref from text produced with Embed. The line must
// hold the label and the ref and nothing else, so free text that merely
// mentions the label does not match.
func Extract(text string) (string, bool) {
	if !strings.Contains(text, RefLabel) {
		return "", false
	}
	for _, m := range linePattern.FindAllStringSubmatch(text, -1) {
		if ValidRef(m[1]) {
			return m[1], true
		}
	}
	return "", false
}
