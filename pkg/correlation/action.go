package correlation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActionType names what an inline button does when pressed.
type ActionType string

const (
	ActionQuickMessage ActionType = "quickmsg"
	ActionClose        ActionType = "close"
	ActionAssign       ActionType = "assign"
	ActionReplying     ActionType = "replying"
	ActionQuickReplies ActionType = "quickreplies"
)

const (
	actionDelimiter = "_"
	maxCallbackData = 64
)

var (
	ErrMalformedAction = errors.New("malformed action token")
	ErrActionTooLong   = errors.New("action token exceeds callback data limit")
)

// Known reports whether the router has a handler for t.
func (t ActionType) Known() bool {
	switch t {
	case ActionQuickMessage, ActionClose, ActionAssign, ActionReplying, ActionQuickReplies:
		return true
	}
	return false
}

// ActionToken is the callback payload of an inline button:
// {type}_{ref}[_{arg}].
type ActionToken struct {
	Type ActionType
	Ref  string
	Arg  string
}

func NewAction(t ActionType, ref string) ActionToken {
	return ActionToken{Type: t, Ref: ref}
}

func NewQuickMessage(ref string, index int) ActionToken {
	return ActionToken{Type: ActionQuickMessage, Ref: ref, Arg: strconv.Itoa(index)}
}

// Encode rejects parts containing the delimiter instead of escaping them;
// refs never contain it by construction.
func (a ActionToken) Encode() (string, error) {
	if a.Type == "" || strings.Contains(string(a.Type), actionDelimiter) {
		return "", fmt.Errorf("%w: type %q", ErrMalformedAction, a.Type)
	}
	if !ValidRef(a.Ref) {
		return "", ErrInvalidRef
	}
	if strings.Contains(a.Arg, actionDelimiter) {
		return "", fmt.Errorf("%w: argument %q", ErrMalformedAction, a.Arg)
	}

	parts := []string{string(a.Type), a.Ref}
	if a.Arg != "" {
		parts = append(parts, a.Arg)
	}
	data := strings.Join(parts, actionDelimiter)
	if len(data) > maxCallbackData {
		return "", ErrActionTooLong
	}
	return data, nil
}

// DecodeAction parses callback data. Structure is validated here; whether
// the type is handled is left to the caller via ActionType.Known.
func DecodeAction(data string) (ActionToken, error) {
	if data == "" || len(data) > maxCallbackData {
		return ActionToken{}, ErrMalformedAction
	}
	parts := strings.Split(data, actionDelimiter)
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return ActionToken{}, ErrMalformedAction
	}
	if !ValidRef(parts[1]) {
		return ActionToken{}, ErrInvalidRef
	}
	tok := ActionToken{Type: ActionType(parts[0]), Ref: parts[1]}
	if len(parts) == 3 {
		if parts[2] == "" {
			return ActionToken{}, ErrMalformedAction
		}
		tok.Arg = parts[2]
	}
	return tok, nil
}

// Index parses Arg as a quick-reply position.
func (a ActionToken) Index() (int, bool) {
	if a.Arg == "" {
		return 0, false
	}
	i, err := strconv.Atoi(a.Arg)
	if err != nil {
		return 0, false
	}
	return i, true
}
