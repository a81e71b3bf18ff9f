package gateway

import (
	"encoding/json"
	"testing"
)

func TestParseMessageSetBlock(t *testing.T) {
	msg, err := ParseMessage("set-block", "true")
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Kind != KindSetBlock || !msg.Blocked {
		t.Fatalf("msg = %+v, want set-block true", msg)
	}

	if _, err := ParseMessage("set-block", "yes"); err == nil {
		t.Fatal("malformed set-block payload must be rejected")
	}
	if _, err := ParseMessage("set-block", ""); err == nil {
		t.Fatal("empty set-block payload must be rejected")
	}
}

func TestParseMessageUnknownKind(t *testing.T) {
	if _, err := ParseMessage("shout", "hi"); err == nil {
		t.Fatal("unknown message type must be rejected")
	}
}

func TestParseMessageDefaultsToText(t *testing.T) {
	msg, err := ParseMessage("", "hello")
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Kind != KindText || msg.Text != "hello" {
		t.Fatalf("msg = %+v, want text hello", msg)
	}
}

func TestMessageWireShape(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{BlockMode(true), `{"type":"block-mode","text":"on"}`},
		{BlockMode(false), `{"type":"block-mode","text":"off"}`},
		{SetBlock(true), `{"type":"set-block","text":"true"}`},
		{SetBlock(false), `{"type":"set-block","text":"false"}`},
		{Text("hello"), `{"type":"text","text":"hello"}`},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.msg)
		if err != nil {
			t.Fatalf("marshal %+v: %v", tc.msg, err)
		}
		if string(data) != tc.want {
			t.Fatalf("wire = %s, want %s", data, tc.want)
		}
	}
}
