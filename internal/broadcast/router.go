package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
)

// Replier is the part of a connection the router answers on.
type Replier interface {
	Send(data []byte) error
}

// Router answers client control frames. It never touches the registry and
// never closes a connection; bad input only earns an ERROR reply.
type Router struct {
	metrics *metrics.WebSocketMetrics
	pong    []byte
}

// NewRouter creates a Router. m may be nil.
func NewRouter(m *metrics.WebSocketMetrics) (*Router, error) {
	pong, err := protocol.Encode(protocol.Pong{})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pong: %w", err)
	}
	return &Router{metrics: m, pong: pong}, nil
}

// Route handles one raw client frame. The returned error is only ever a
// failure to deliver the reply.
func (r *Router) Route(ctx context.Context, conn Replier, raw []byte) error {
	in, err := protocol.ParseInbound(raw)
	if err != nil {
		r.count("malformed")
		slog.WarnContext(ctx, "Malformed client message", "error", err, "size", len(raw))
		return r.ReplyError(conn, "malformed message: invalid JSON")
	}

	switch in.Type {
	case protocol.KindPing:
		r.count(string(in.Type))
		return conn.Send(r.pong)
	case protocol.KindSubscribe:
		r.count(string(in.Type))
		// Accepted for compatibility; every client receives every update.
		if req, err := in.Subscribe(); err == nil {
			slog.DebugContext(ctx, "Subscribe request ignored", "topics", req.Topics)
		}
		return nil
	default:
		r.count("unknown")
		slog.DebugContext(ctx, "Unknown client message type", "type", string(in.Type))
		return r.ReplyError(conn, fmt.Sprintf("unknown message type: %s", in.Type))
	}
}

// ReplyError sends an ERROR frame with message to conn.
func (r *Router) ReplyError(conn Replier, message string) error {
	data, err := protocol.Encode(protocol.Error{Message: message})
	if err != nil {
		return err
	}
	return conn.Send(data)
}

func (r *Router) count(kind string) {
	if r.metrics != nil {
		r.metrics.InboundMessages.WithLabelValues(kind).Inc()
	}
}
