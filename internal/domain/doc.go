// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (notification.go, errors.go, pubsub.go) hold shared types and the
// contracts other packages depend on. No infrastructure code lives here.
package domain
