package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/broadcast"
	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/config"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockHub struct {
	mu          sync.Mutex
	registered  []broadcast.Conn
	unregisters []uuid.UUID
	registerErr error
	size        int
}

func (m *mockHub) Register(conn broadcast.Conn, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, conn)
	return nil
}

func (m *mockHub) Unregister(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisters = append(m.unregisters, id)
}

func (m *mockHub) MarkAlive(uuid.UUID) {}

func (m *mockHub) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

type mockPublisher struct {
	mu        sync.Mutex
	events    []domain.NotificationUpdateEvent
	publishFn func(ctx context.Context, event domain.NotificationUpdateEvent) error
}

func (m *mockPublisher) PublishNotificationUpdate(ctx context.Context, event domain.NotificationUpdateEvent) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, event); err != nil {
			return err
		}
	} else if err := event.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) published() []domain.NotificationUpdateEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.NotificationUpdateEvent(nil), m.events...)
}

// --- Test helpers ---

type serverOption func(cfg *config.Config, deps *Dependencies)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		WebSocketPath:           "/ws",
		HeartbeatInterval:       30 * time.Second,
		ClientTimeout:           35 * time.Second,
		WriteTimeout:            5 * time.Second,
		SendBufferSize:          16,
		MaxWebSocketConnections: 100,
		InboundRateLimit:        100,
		InboundBurst:            100,
		EventsAPIRateLimit:      100,
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *Server {
	t.Helper()

	cfg := testConfig()
	deps := Dependencies{
		Hub:       &mockHub{},
		Publisher: &mockPublisher{},
		Metrics:   metrics.NewSet(),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv
}

func withConfig(fn func(*config.Config)) serverOption {
	return func(cfg *config.Config, _ *Dependencies) {
		fn(cfg)
	}
}

func withHub(hub connectionHub) serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		deps.Hub = hub
	}
}

func withPublisher(p domain.NotificationPublisher) serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		deps.Publisher = p
	}
}

type mockCluster struct {
	instances   int
	connections int
	err         error
}

func (m *mockCluster) ClusterConnections(context.Context) (int, int, error) {
	return m.instances, m.connections, m.err
}

func withCluster(cluster clusterView) serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		deps.Cluster = cluster
	}
}

func withClock(clock clockwork.Clock) serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		deps.Clock = clock
	}
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		deps.HealthChecks = checks
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
