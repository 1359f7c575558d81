package broadcast

import (
	"context"
	"testing"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*Router, *metrics.WebSocketMetrics) {
	t.Helper()
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	r, err := NewRouter(m)
	require.NoError(t, err)
	return r, m
}

func TestRouter_PingGetsPong(t *testing.T) {
	r, m := testRouter(t)
	c := newFakeConn()

	require.NoError(t, r.Route(context.Background(), c, []byte(`{"type":"PING"}`)))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"type":"PONG","data":{}}`, msgs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundMessages.WithLabelValues("PING")))
}

func TestRouter_SubscribeIsAcceptedSilently(t *testing.T) {
	r, _ := testRouter(t)
	c := newFakeConn()

	require.NoError(t, r.Route(context.Background(), c, []byte(`{"type":"SUBSCRIBE","topics":["team-a"]}`)))
	require.NoError(t, r.Route(context.Background(), c, []byte(`{"type":"SUBSCRIBE"}`)))

	assert.Empty(t, c.messages())
}

func TestRouter_UnknownTypeGetsError(t *testing.T) {
	r, m := testRouter(t)
	c := newFakeConn()

	require.NoError(t, r.Route(context.Background(), c, []byte(`{"type":"FOO"}`)))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"type":"ERROR","data":{"message":"unknown message type: FOO"}}`, msgs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundMessages.WithLabelValues("unknown")))
}

func TestRouter_MissingTypeGetsError(t *testing.T) {
	r, _ := testRouter(t)
	c := newFakeConn()

	require.NoError(t, r.Route(context.Background(), c, []byte(`{"topics":[]}`)))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"type":"ERROR"`)
}

func TestRouter_MalformedInputGetsErrorAndConnectionSurvives(t *testing.T) {
	r, m := testRouter(t)
	c := newFakeConn()

	inputs := []string{`not json`, `{"type":`, `[1,2,3]`, ``}
	for _, in := range inputs {
		require.NoError(t, r.Route(context.Background(), c, []byte(in)), in)
	}

	msgs := c.messages()
	require.Len(t, msgs, len(inputs))
	for _, msg := range msgs {
		assert.JSONEq(t, `{"type":"ERROR","data":{"message":"malformed message: invalid JSON"}}`, msg)
	}
	assert.False(t, c.isClosed())
	assert.Equal(t, float64(len(inputs)), testutil.ToFloat64(m.InboundMessages.WithLabelValues("malformed")))

	// Still usable afterwards.
	require.NoError(t, r.Route(context.Background(), c, []byte(`{"type":"PING"}`)))
	assert.JSONEq(t, `{"type":"PONG","data":{}}`, c.messages()[len(inputs)])
}

func TestRouter_ReplyFailureIsReturned(t *testing.T) {
	r, err := NewRouter(nil)
	require.NoError(t, err)
	c := newFakeConn()
	c.failSends(ErrSendBufferFull)

	err = r.Route(context.Background(), c, []byte(`{"type":"PING"}`))
	assert.ErrorIs(t, err, ErrSendBufferFull)
}
