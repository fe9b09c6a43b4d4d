package correlation

import (
	"errors"
	"strings"
	"testing"
)

func TestActionTokenRoundTrip(t *testing.T) {
	tokens := []ActionToken{
		NewAction(ActionClose, "abc-123"),
		NewAction(ActionAssign, "abc-123"),
		NewAction(ActionReplying, "550e8400-e29b-41d4-a716-446655440000"),
		NewAction(ActionQuickReplies, strings.Repeat("r", MaxRefLen)),
		NewQuickMessage("abc-123", 0),
		NewQuickMessage(strings.Repeat("q", MaxRefLen), 999),
	}
	for _, tok := range tokens {
		data, err := tok.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", tok, err)
		}
		if len(data) > 64 {
			t.Fatalf("encoded token %q exceeds 64 bytes", data)
		}
		got, err := DecodeAction(data)
		if err != nil {
			t.Fatalf("DecodeAction(%q): %v", data, err)
		}
		if got != tok {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, tok)
		}
	}
}

func TestEncodeCloseFormat(t *testing.T) {
	data, err := NewAction(ActionClose, "abc-123").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data != "close_abc-123" {
		t.Fatalf("got %q", data)
	}
}

func TestEncodeRejectsDelimiter(t *testing.T) {
	if _, err := (ActionToken{Type: ActionClose, Ref: "a_b"}).Encode(); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("ref with delimiter: err = %v", err)
	}
	if _, err := (ActionToken{Type: ActionQuickMessage, Ref: "abc", Arg: "1_2"}).Encode(); !errors.Is(err, ErrMalformedAction) {
		t.Fatalf("arg with delimiter: err = %v", err)
	}
	if _, err := (ActionToken{Type: "bad_type", Ref: "abc"}).Encode(); !errors.Is(err, ErrMalformedAction) {
		t.Fatalf("type with delimiter: err = %v", err)
	}
}

func TestEncodeRejectsOverlongToken(t *testing.T) {
	tok := ActionToken{Type: ActionQuickMessage, Ref: strings.Repeat("a", MaxRefLen), Arg: strings.Repeat("9", 10)}
	if _, err := tok.Encode(); !errors.Is(err, ErrActionTooLong) {
		t.Fatalf("err = %v, want ErrActionTooLong", err)
	}
}

func TestDecodeActionMalformed(t *testing.T) {
	for _, data := range []string{"", "close", "_abc", "close_", "close_abc_", "a_b_c_d", "close_bad ref"} {
		if _, err := DecodeAction(data); err == nil {
			t.Fatalf("DecodeAction(%q) expected error", data)
		}
	}
}

func TestDecodeActionUnknownTypeIsStructurallyValid(t *testing.T) {
	tok, err := DecodeAction("confirm_abc-123")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.Type.Known() {
		t.Fatalf("type %q should not be known", tok.Type)
	}
}

func TestActionTokenIndex(t *testing.T) {
	if i, ok := NewQuickMessage("abc", 3).Index(); !ok || i != 3 {
		t.Fatalf("Index = %d, %v", i, ok)
	}
	if _, ok := (ActionToken{Type: ActionQuickMessage, Ref: "abc", Arg: "x"}).Index(); ok {
		t.Fatalf("non-numeric arg should not parse")
	}
	if _, ok := NewAction(ActionQuickMessage, "abc").Index(); ok {
		t.Fatalf("missing arg should not parse")
	}
}
