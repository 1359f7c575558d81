// Package protocol defines the JSON envelope exchanged with WebSocket clients.
//
// Every server frame is {"type": <kind>, "data": <payload>}. Outbound is a closed
// set of variants so a frame cannot be built with a mismatched kind and payload.
// Client frames carry a type and are parsed leniently; unknown types are the
// router's concern, not the parser's.
package protocol
