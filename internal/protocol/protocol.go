package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
)

// Kind identifies the type of a frame.
type Kind string

// Server to client.
const (
	KindConnectionStatus   Kind = "CONNECTION_STATUS"
	KindNotificationUpdate Kind = "NOTIFICATION_UPDATE"
	KindError              Kind = "ERROR"
	KindPong               Kind = "PONG"
)

// Client to server.
const (
	KindPing      Kind = "PING"
	KindSubscribe Kind = "SUBSCRIBE"
)

// StatusConnected is the only connection status the server announces.
const StatusConnected = "connected"

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message type")
)

// Outbound is a server to client message.
type Outbound interface {
	Kind() Kind
	payload() any
}

// ConnectionStatus is sent once, right after a connection is registered.
type ConnectionStatus struct {
	Status string `json:"status"`
}

// NotificationUpdate carries a changed notification snapshot.
type NotificationUpdate struct {
	Event domain.NotificationUpdateEvent
}

// Error reports a problem with a client frame.
type Error struct {
	Message string `json:"message"`
}

// Pong answers an application-level PING.
type Pong struct{}

func (ConnectionStatus) Kind() Kind   { return KindConnectionStatus }
func (NotificationUpdate) Kind() Kind { return KindNotificationUpdate }
func (Error) Kind() Kind              { return KindError }
func (Pong) Kind() Kind               { return KindPong }

func (m ConnectionStatus) payload() any   { return m }
func (m NotificationUpdate) payload() any { return m.Event }
func (m Error) payload() any              { return m }
func (Pong) payload() any                 { return struct{}{} }

// Envelope is the wire shape of every frame.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializes msg into its envelope.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg.payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Kind(), err)
	}
	return json.Marshal(Envelope{Type: msg.Kind(), Data: data})
}

// Connected returns the greeting sent to every new connection.
func Connected() ConnectionStatus {
	return ConnectionStatus{Status: StatusConnected}
}

// Decode parses a server frame back into its variant. Clients use it; unknown
// kinds return ErrUnknownKind so callers can skip them.
func Decode(raw []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch env.Type {
	case KindConnectionStatus:
		var m ConnectionStatus
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindNotificationUpdate:
		var m NotificationUpdate
		if err := unmarshalData(env, &m.Event); err != nil {
			return nil, err
		}
		return m, nil
	case KindError:
		var m Error
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindPong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func unmarshalData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s frame has no data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrMalformed, env.Type, err)
	}
	return nil
}
