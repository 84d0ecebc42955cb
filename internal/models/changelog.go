package models

import "time"

// ChangeAction is the kind of mutation a change-log row records.
type ChangeAction string

const (
	ActionCreated       ChangeAction = "created"
	ActionUpdated       ChangeAction = "updated"
	ActionStatusChanged ChangeAction = "status-changed"
)

// Change-log source tags identifying which sync path produced a row.
const (
	SourceWindowSync  = "window-sync"
	SourceDriftVerify = "drift-verify"
)

// ChangeLogEntry is one immutable audit row. The engine only ever appends;
// rows are never mutated or deleted.
type ChangeLogEntry struct {
	ID         int64
	EntityKind Kind
	RefNbr     string
	Action     ChangeAction
	Field      string
	OldValue   string
	NewValue   string
	Source     string
	LoggedAt   time.Time
}
