// Package subscriber is the consumer side of the notification stream: it
// keeps one websocket session open against the server, decodes envelopes
// into typed callbacks and reconnects with exponential backoff.
package subscriber
