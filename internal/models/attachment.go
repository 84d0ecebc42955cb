package models

import "time"

// Attachment is the metadata row for one binary file tied to a document.
// Identity is (RefNbr, FileID); storing the same pair twice is a no-op.
type Attachment struct {
	Kind       Kind
	RefNbr     string
	FileID     string
	Filename   string
	StorageKey string
	Size       int64

	// CheckImage flags files the UI should surface first (scanned checks).
	// Storage handling is identical to any other attachment.
	CheckImage bool

	CreatedAt time.Time
}
