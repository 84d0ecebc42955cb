package models

import "time"

// Application links a payment to an invoice it was applied against.
// Identity is (payment identity, invoice reference). Rows for a payment are
// replaced wholesale on every re-sync because the remote system never emits
// application deletions.
type Application struct {
	PaymentKind Kind
	PaymentRef  string
	InvoiceRef  string
	DocType     string
	Amount      float64
	AppliedAt   time.Time
}
