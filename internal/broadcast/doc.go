// Package broadcast owns live WebSocket connections and fans messages out to them.
//
// The Hub is an actor: one goroutine owns the connection registry and processes
// register, unregister, liveness and broadcast commands serially, so no mutexes
// guard the registry. The same goroutine runs the heartbeat: a connection that
// misses a full interval without answering a ping is closed and dropped.
// Each Socket has its own writer goroutine and a bounded send buffer, so a slow
// client fails its own sends instead of stalling the hub.
package broadcast
