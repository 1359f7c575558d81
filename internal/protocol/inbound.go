package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound is a parsed client frame. Raw keeps the whole frame for kinds that
// carry extra fields.
type Inbound struct {
	Type Kind
	Raw  json.RawMessage
}

// SubscribeRequest is the body of a SUBSCRIBE frame.
type SubscribeRequest struct {
	Type   Kind     `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// ParseInbound decodes a client frame. Any valid JSON object is accepted; the
// type may be empty or unknown.
func ParseInbound(raw []byte) (Inbound, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Inbound{Type: head.Type, Raw: raw}, nil
}

// Subscribe decodes the frame as a SUBSCRIBE request.
func (in Inbound) Subscribe() (SubscribeRequest, error) {
	var req SubscribeRequest
	if err := json.Unmarshal(in.Raw, &req); err != nil {
		return SubscribeRequest{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return req, nil
}

// EncodeInbound builds a client frame. Used by the subscriber.
func EncodeInbound(kind Kind, topics ...string) ([]byte, error) {
	if kind == KindSubscribe {
		return json.Marshal(SubscribeRequest{Type: kind, Topics: topics})
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
	}{Type: kind})
}
