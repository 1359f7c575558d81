package domain

import (
	"fmt"
	"strings"
)

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "PENDING"
	StatusDone       NotificationStatus = "DONE"
	StatusInProgress NotificationStatus = "IN_PROGRESS"
	StatusOverdue    NotificationStatus = "OVERDUE"
)

// Valid reports whether s is one of the known statuses.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDone, StatusInProgress, StatusOverdue:
		return true
	}
	return false
}

// ReopenEntry records one reopening of a notification.
type ReopenEntry struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// NotificationUpdateEvent is a snapshot of a notification after a change.
// It is not a diff: clients replace whatever they hold for ID.
type NotificationUpdateEvent struct {
	ID            string             `json:"id"`
	Status        NotificationStatus `json:"status"`
	Message       string             `json:"message,omitempty"`
	ReopenHistory []ReopenEntry      `json:"reopenHistory,omitempty"`
}

// Validate checks the required fields. The returned error wraps ErrInvalidEvent
// and the specific cause.
func (e NotificationUpdateEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrMissingID)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidEvent, ErrInvalidStatus, e.Status)
	}
	return nil
}
