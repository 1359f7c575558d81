// Package app provides the application service layer.
//
// Notifier is the publishing side of the fan-out: CRUD handlers, the events API
// and the database listener all announce notification changes through it.
// It depends on small interfaces, not on the hub or Redis directly.
package app
