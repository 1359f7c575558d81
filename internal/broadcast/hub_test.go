package broadcast

import (
	"testing"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 30 * time.Second

func testHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = testInterval
	}
	hub, err := NewHub(opts)
	require.NoError(t, err)
	t.Cleanup(hub.Stop)
	return hub
}

func register(t *testing.T, hub *Hub) *fakeConn {
	t.Helper()
	c := newFakeConn()
	require.NoError(t, hub.Register(c, ""))
	return c
}

func greeting(t *testing.T) string {
	t.Helper()
	data, err := protocol.Encode(protocol.Connected())
	require.NoError(t, err)
	return string(data)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}

func TestHub_RegisterSendsGreetingFirst(t *testing.T) {
	hub := testHub(t, Options{})
	c := register(t, hub)

	_, err := hub.Broadcast([]byte(`{"type":"NOTIFICATION_UPDATE","data":{"id":"1","status":"DONE"}}`))
	require.NoError(t, err)

	msgs := c.messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"type":"CONNECTION_STATUS","data":{"status":"connected"}}`, msgs[0])
	assert.Equal(t, greeting(t), msgs[0])
	assert.Equal(t, 1, hub.Size())
}

func TestHub_RegisterFailsWhenGreetingCannotBeSent(t *testing.T) {
	hub := testHub(t, Options{})
	c := newFakeConn()
	c.failSends(errBrokenPipe)

	err := hub.Register(c, "")
	assert.ErrorIs(t, err, errBrokenPipe)
	assert.Equal(t, 0, hub.Size())
}

func TestHub_BroadcastReachesEveryConnection(t *testing.T) {
	hub := testHub(t, Options{})
	conns := []*fakeConn{register(t, hub), register(t, hub), register(t, hub)}

	payload := []byte(`{"type":"NOTIFICATION_UPDATE","data":{"id":"n7","status":"DONE"}}`)
	delivered, err := hub.Broadcast(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	for _, c := range conns {
		msgs := c.messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, string(payload), msgs[1])
	}
}

func TestHub_BroadcastIsolatesFailingConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	hub := testHub(t, Options{Metrics: wsMetrics})

	good1, broken, good2 := register(t, hub), register(t, hub), register(t, hub)
	broken.failSends(errBrokenPipe)

	delivered, err := hub.Broadcast([]byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 2, hub.Size())
	assert.True(t, broken.isClosed())
	assert.Equal(t, 1.0, testutil.ToFloat64(wsMetrics.SendFailures))

	delivered, err = hub.Broadcast([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	for _, c := range []*fakeConn{good1, good2} {
		assert.Equal(t, []string{greeting(t), "first", "second"}, c.messages())
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(wsMetrics.ActiveConnections))
}

func TestHub_BroadcastWithNoConnections(t *testing.T) {
	hub := testHub(t, Options{})

	delivered, err := hub.Broadcast([]byte("nobody"))
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := testHub(t, Options{})
	a := register(t, hub)
	register(t, hub)

	hub.Unregister(a.ID())
	hub.Unregister(a.ID())
	assert.Equal(t, 1, hub.Size())
}

func TestHub_MaxConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	hub := testHub(t, Options{MaxConnections: 2, Metrics: wsMetrics})

	register(t, hub)
	register(t, hub)

	err := hub.Register(newFakeConn(), "")
	assert.ErrorIs(t, err, ErrTooManyConnections)
	assert.Equal(t, 2, hub.Size())
	assert.Equal(t, 1.0, testutil.ToFloat64(wsMetrics.ConnectionsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(wsMetrics.ConnectionsTotal.WithLabelValues("accepted")))
}

func TestHub_HeartbeatEvictsAfterTwoSilentTicks(t *testing.T) {
	reg := prometheus.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	clock := clockwork.NewFakeClock()
	hub := testHub(t, Options{Clock: clock, Metrics: wsMetrics})

	silent := register(t, hub)
	healthy := register(t, hub)

	// First tick: both are alive, both get pinged.
	clock.Advance(testInterval)
	eventually(t, func() bool { return silent.pingCount() == 1 && healthy.pingCount() == 1 }, "first ping")
	assert.Equal(t, 2, hub.Size())
	assert.False(t, silent.isClosed())

	hub.MarkAlive(healthy.ID())
	require.Equal(t, 2, hub.Size())

	// Second tick: the silent one is evicted, the healthy one is pinged again.
	clock.Advance(testInterval)
	eventually(t, func() bool { return silent.isClosed() && hub.Size() == 1 }, "silent connection evicted")
	eventually(t, func() bool { return healthy.pingCount() == 2 }, "healthy connection pinged again")
	assert.False(t, healthy.isClosed())
	assert.Equal(t, 1, silent.pingCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(wsMetrics.HeartbeatEvictions))

	delivered, err := hub.Broadcast([]byte("after"))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestHub_HeartbeatKeepsResponsiveConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := testHub(t, Options{Clock: clock})
	c := register(t, hub)

	for round := 1; round <= 5; round++ {
		clock.Advance(testInterval)
		eventually(t, func() bool { return c.pingCount() == round }, "ping sent")
		hub.MarkAlive(c.ID())
		require.Equal(t, 1, hub.Size())
	}
	assert.False(t, c.isClosed())
}

func TestHub_HeartbeatDropsConnectionWhenPingFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := testHub(t, Options{Clock: clock})
	c := newFakeConn()
	c.pingErr = errBrokenPipe
	require.NoError(t, hub.Register(c, ""))

	clock.Advance(testInterval)
	eventually(t, func() bool { return hub.Size() == 0 }, "connection dropped on ping failure")
	assert.True(t, c.isClosed())
}

func TestHub_MarkAliveForUnknownConnection(t *testing.T) {
	hub := testHub(t, Options{})
	hub.MarkAlive(newFakeConn().ID())
	assert.Equal(t, 0, hub.Size())
}

func TestHub_StopClosesConnectionsAndHaltsHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub, err := NewHub(Options{Clock: clock, HeartbeatInterval: testInterval})
	require.NoError(t, err)

	a, b := register(t, hub), register(t, hub)
	hub.Stop()

	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())

	clock.Advance(3 * testInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, a.pingCount())

	assert.ErrorIs(t, hub.Register(newFakeConn(), ""), ErrHubStopped)
	_, err = hub.Broadcast([]byte("late"))
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.Equal(t, 0, hub.Size())

	hub.Stop()
}

func TestHub_StopSendsCloseFrame(t *testing.T) {
	hub, err := NewHub(Options{})
	require.NoError(t, err)

	server, client := newTestConnPair(t)
	require.NoError(t, hub.Register(NewSocket(server, SocketOptions{}), ""))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, greeting(t), string(msg))

	hub.Stop()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server shutting down")
}
