package gateway

import (
	"encoding/json"
	"fmt"
)

// Kind tags an admin push message.
type Kind string

const (
	KindText      Kind = "text"
	KindBlockMode Kind = "block-mode"
	KindSetBlock  Kind = "set-block"
)

// Message is the tagged variant pushed to visitors. The boolean payload of
// block-mode and set-block is decided once at the boundary; handlers never
// compare "true"/"false" strings again.
type Message struct {
	Kind    Kind
	Text    string
	Blocked bool
}

func Text(text string) Message {
	return Message{Kind: KindText, Text: text}
}

func BlockMode(on bool) Message {
	return Message{Kind: KindBlockMode, Blocked: on}
}

func SetBlock(blocked bool) Message {
	return Message{Kind: KindSetBlock, Blocked: blocked}
}

// wireMessage is the JSON shape clients receive.
type wireMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{Type: string(m.Kind)}

	switch m.Kind {
	case KindBlockMode:
		if m.Blocked {
			wire.Text = "on"
		} else {
			wire.Text = "off"
		}
	case KindSetBlock:
		if m.Blocked {
			wire.Text = "true"
		} else {
			wire.Text = "false"
		}
	default:
		wire.Text = m.Text
	}

	return json.Marshal(wire)
}

// ParseMessage validates an operator payload and produces the variant.
// A set-block payload must be exactly "true" or "false"; anything else is
// rejected here, before it can reach dispatch.
func ParseMessage(kind, text string) (Message, error) {
	switch Kind(kind) {
	case KindText, "":
		return Text(text), nil
	case KindBlockMode:
		switch text {
		case "on", "true":
			return BlockMode(true), nil
		case "off", "false":
			return BlockMode(false), nil
		}
		return Message{}, fmt.Errorf("gateway: block-mode payload must be on or off, got %q", text)
	case KindSetBlock:
		switch text {
		case "true":
			return SetBlock(true), nil
		case "false":
			return SetBlock(false), nil
		}
		return Message{}, fmt.Errorf("gateway: set-block payload must be true or false, got %q", text)
	}
	return Message{}, fmt.Errorf("gateway: unknown message type %q", kind)
}
