// Package correlation carries request and connection identifiers through a
// context and stamps them on every log record written with that context.
package correlation

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const maxInboundIDLength = 64

type requestKey struct{}

type connectionKey struct{}

// NewID returns a 12-character hex ID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:6])
}

// WithID returns a context carrying the request ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// ID returns the request ID carried by ctx.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestKey{}).(string)
	return id, ok && id != ""
}

// Adopt uses an ID supplied by the caller (typically X-Request-ID) when it is
// safe to log, and a fresh one otherwise.
func Adopt(ctx context.Context, candidate string) (context.Context, string) {
	id := candidate
	if !acceptable(id) {
		id = NewID()
	}
	return WithID(ctx, id), id
}

// acceptable limits inbound IDs to short printable ASCII without spaces so a
// client cannot forge log fields.
func acceptable(id string) bool {
	if id == "" || len(id) > maxInboundIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// WithConnection returns a context carrying a websocket connection ID.
func WithConnection(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionKey{}, id)
}

// ConnectionID returns the websocket connection ID carried by ctx.
func ConnectionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connectionKey{}).(string)
	return id, ok && id != ""
}

// Handler adds correlation_id and connection_id attributes from the context.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := ConnectionID(ctx); ok {
		r.AddAttrs(slog.String("connection_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
