// Package models defines the canonical, store-agnostic representations of
// remote Acumatica documents and the engine's own bookkeeping entities
// (sync jobs, sessions, change-log rows).
package models

import "time"

// Kind is the logical category of a remote financial document.
type Kind string

const (
	KindPayment       Kind = "payment"
	KindInvoice       Kind = "invoice"
	KindVoidedPayment Kind = "voided-payment"

	// KindCreditMemo is never synced; it exists so the reader can name the
	// document type it excludes from payment windows.
	KindCreditMemo Kind = "credit-memo"
)

// Entity returns the Acumatica top-level entity the kind is read from.
func (k Kind) Entity() string {
	switch k {
	case KindInvoice, KindCreditMemo:
		return "Invoice"
	default:
		return "Payment"
	}
}

// RemoteType returns the Acumatica document type value for the kind.
func (k Kind) RemoteType() string {
	switch k {
	case KindPayment:
		return "Payment"
	case KindInvoice:
		return "Invoice"
	case KindVoidedPayment:
		return "Voided Payment"
	case KindCreditMemo:
		return "Credit Memo"
	}
	return string(k)
}

// DateField returns the remote field holding the document's primary date.
func (k Kind) DateField() string {
	switch k {
	case KindInvoice, KindCreditMemo:
		return "Date"
	default:
		return "ApplicationDate"
	}
}

// WindowKinds returns the canonical kinds a window of kind k spans. Payment
// windows include voided payments, which the remote models as parallel
// documents rather than a status flip.
func (k Kind) WindowKinds() []Kind {
	if k == KindPayment {
		return []Kind{KindPayment, KindVoidedPayment}
	}
	return []Kind{k}
}

// InWindowOf reports whether documents of kind k belong to a window fetched
// for w.
func (k Kind) InWindowOf(w Kind) bool {
	for _, wk := range w.WindowKinds() {
		if k == wk {
			return true
		}
	}
	return false
}

// Valid reports whether k is a kind the engine syncs.
func (k Kind) Valid() bool {
	switch k {
	case KindPayment, KindInvoice, KindVoidedPayment:
		return true
	}
	return false
}

// Document is the canonical record for one remote financial document.
// Identity is (Kind, RefNbr); RefNbr is zero-padded for comparison stability.
type Document struct {
	Kind        Kind
	RefNbr      string
	Status      string
	DocDate     time.Time
	Amount      float64
	CustomerID  string
	Description string

	// RawPayload keeps the unparsed remote JSON so later schema revisions
	// can be inspected without re-fetching.
	RawPayload []byte

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the document's stable identity key.
func (d *Document) Identity() string {
	return string(d.Kind) + "/" + d.RefNbr
}
