package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	instancesKey             = "notifier:instances"
	DefaultInstanceHeartbeat = 15 * time.Second
	unregisterTimeout        = 2 * time.Second
)

// ConnectionCounter reports the number of local websocket connections.
type ConnectionCounter interface {
	Size() int
}

// InstanceInfo is one instance's last heartbeat.
type InstanceInfo struct {
	InstanceID  string `json:"instance_id"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
	Timestamp   int64  `json:"timestamp"`
}

// InstanceRegistry publishes this instance's connection count to a shared
// hash. Entries older than three heartbeats are ignored.
type InstanceRegistry struct {
	rdb        *goredis.Client
	instanceID string
	version    string
	heartbeat  time.Duration
	counter    ConnectionCounter
	clock      clockwork.Clock
}

func NewInstanceRegistry(rdb *goredis.Client, instanceID, version string, heartbeat time.Duration, counter ConnectionCounter, clock clockwork.Clock) *InstanceRegistry {
	if heartbeat <= 0 {
		heartbeat = DefaultInstanceHeartbeat
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InstanceRegistry{
		rdb:        rdb,
		instanceID: instanceID,
		version:    version,
		heartbeat:  heartbeat,
		counter:    counter,
		clock:      clock,
	}
}

// Run registers immediately and then on every heartbeat. It blocks until ctx
// is cancelled, then removes this instance.
func (r *InstanceRegistry) Run(ctx context.Context) {
	r.register(ctx)

	ticker := r.clock.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.register(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

func (r *InstanceRegistry) register(ctx context.Context) {
	data, err := json.Marshal(InstanceInfo{
		InstanceID:  r.instanceID,
		Version:     r.version,
		Connections: r.counter.Size(),
		Timestamp:   r.clock.Now().Unix(),
	})
	if err != nil {
		return
	}

	if err := r.rdb.HSet(ctx, instancesKey, r.instanceID, data).Err(); err != nil {
		slog.Warn("Failed to register instance", "instance_id", r.instanceID, "error", err)
	}
}

func (r *InstanceRegistry) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()
	_ = r.rdb.HDel(ctx, instancesKey, r.instanceID).Err()
}

// Instances returns every instance with a fresh heartbeat, ordered by ID.
func (r *InstanceRegistry) Instances(ctx context.Context) ([]InstanceInfo, error) {
	entries, err := r.rdb.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	cutoff := r.clock.Now().Add(-3 * r.heartbeat).Unix()
	infos := make([]InstanceInfo, 0, len(entries))
	for _, data := range entries {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if info.Timestamp >= cutoff {
			infos = append(infos, info)
		}
	}

	slices.SortFunc(infos, func(a, b InstanceInfo) int {
		return strings.Compare(a.InstanceID, b.InstanceID)
	})
	return infos, nil
}

// ClusterConnections sums the connection counts of all live instances.
func (r *InstanceRegistry) ClusterConnections(ctx context.Context) (instances, connections int, err error) {
	infos, err := r.Instances(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, info := range infos {
		connections += info.Connections
	}
	return len(infos), connections, nil
}
