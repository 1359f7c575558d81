package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

var errConnRefused = errors.New("connection refused")

func failing(context.Context, goredis.Cmder) error { return errConnRefused }

func succeeding(context.Context, goredis.Cmder) error { return nil }

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{}, nil)
	ctx := context.Background()

	process := hook.ProcessHook(succeeding)
	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_TreatsNilAsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{MinCalls: 1}, nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 3 {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	m := metrics.NewBackplaneMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(BreakerSettings{MinCalls: 3, Delay: time.Hour}, m)
	ctx := context.Background()

	process := hook.ProcessHook(failing)
	for range 3 {
		assert.ErrorIs(t, process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")), errConnRefused)
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	called := false
	guarded := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	err := guarded(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called, "open breaker must not reach redis")
}

func TestCircuitBreakerHook_PipelineFailuresCount(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{MinCalls: 2, Delay: time.Hour}, nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return errConnRefused })
	for range 2 {
		assert.Error(t, pipeline(ctx, nil))
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())
}

func TestMetricsHook_RecordsLatencyAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBackplaneMetrics(reg)
	hook := NewMetricsHook(m)
	ctx := context.Background()

	_ = hook.ProcessHook(succeeding)(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x"))
	_ = hook.ProcessHook(failing)(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x"))
	_ = hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })(ctx, goredis.NewStringCmd(ctx, "get", "k"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisErrors.WithLabelValues("publish")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RedisErrors.WithLabelValues("get")))

	count, err := testutil.GatherAndCount(reg, "scgnoti_redis_command_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, count, "one series per command name")
}
