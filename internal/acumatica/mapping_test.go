package acumatica

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvista/acusync/internal/models"
)

func TestParseDocumentPayment(t *testing.T) {
	raw := json.RawMessage(`{
		"Type": {"value": "Payment"},
		"ReferenceNbr": {"value": "4321"},
		"Status": {"value": "Open"},
		"ApplicationDate": {"value": "2025-03-10T00:00:00"},
		"PaymentAmount": {"value": 150.25},
		"CustomerID": {"value": "CUST01"},
		"Description": {"value": "march payment"}
	}`)

	doc, err := ParseDocument(models.KindPayment, raw)
	require.NoError(t, err)

	assert.Equal(t, models.KindPayment, doc.Kind)
	assert.Equal(t, "004321", doc.RefNbr, "numeric references are zero-padded")
	assert.Equal(t, "Open", doc.Status)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), doc.DocDate)
	assert.Equal(t, 150.25, doc.Amount)
	assert.Equal(t, "CUST01", doc.CustomerID)
	assert.Equal(t, "march payment", doc.Description)
	assert.JSONEq(t, string(raw), string(doc.RawPayload))
}

func TestParseDocumentInvoiceUsesItsOwnFieldNames(t *testing.T) {
	raw := json.RawMessage(`{
		"Type": {"value": "Invoice"},
		"ReferenceNbr": {"value": "INV-99"},
		"Status": {"value": "Closed"},
		"Date": {"value": "2025-02-01"},
		"Amount": {"value": "99.5"},
		"Customer": {"value": "ACME"}
	}`)

	doc, err := ParseDocument(models.KindInvoice, raw)
	require.NoError(t, err)

	assert.Equal(t, "INV-99", doc.RefNbr, "non-numeric references are left alone")
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), doc.DocDate)
	assert.Equal(t, 99.5, doc.Amount, "numeric strings are coerced")
	assert.Equal(t, "ACME", doc.CustomerID)
}

func TestParseDocumentBareValues(t *testing.T) {
	// Some endpoints return bare scalars without the value envelope.
	raw := json.RawMessage(`{
		"ReferenceNbr": "77",
		"Status": "Open",
		"ApplicationDate": "2025-03-03T12:30:00Z",
		"PaymentAmount": 10
	}`)

	doc, err := ParseDocument(models.KindPayment, raw)
	require.NoError(t, err)
	assert.Equal(t, "000077", doc.RefNbr)
	assert.Equal(t, 10.0, doc.Amount)
	assert.Equal(t, 12, doc.DocDate.Hour())
}

func TestParseDocumentNullFieldsAreSkipped(t *testing.T) {
	raw := json.RawMessage(`{
		"ReferenceNbr": {"value": "000001"},
		"Status": {"value": null},
		"ApplicationDate": {"value": "2025-03-03"},
		"Description": {}
	}`)

	doc, err := ParseDocument(models.KindPayment, raw)
	require.NoError(t, err)
	assert.Empty(t, doc.Status)
	assert.Empty(t, doc.Description)
}

func TestParseDocumentRejectsMissingReference(t *testing.T) {
	raw := json.RawMessage(`{"Status": {"value": "Open"}}`)
	_, err := ParseDocument(models.KindPayment, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reference number")
}

func TestParseDocumentRejectsBadDate(t *testing.T) {
	raw := json.RawMessage(`{
		"ReferenceNbr": {"value": "000001"},
		"ApplicationDate": {"value": "last tuesday"}
	}`)
	_, err := ParseDocument(models.KindPayment, raw)
	require.Error(t, err)
}

func TestRemoteTypeOf(t *testing.T) {
	typ, err := remoteTypeOf(json.RawMessage(`{"Type": {"value": "Voided Payment"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Voided Payment", typ)

	kind, ok := kindFromRemoteType[typ]
	require.True(t, ok)
	assert.Equal(t, models.KindVoidedPayment, kind)

	_, ok = kindFromRemoteType["Credit Memo"]
	assert.False(t, ok, "credit memos are never synced")
}

func TestParseApplications(t *testing.T) {
	raw := json.RawMessage(`{
		"ReferenceNbr": {"value": "004321"},
		"ApplicationHistory": [
			{
				"DisplayRefNbr": {"value": "100"},
				"DisplayDocType": {"value": "Invoice"},
				"AmountPaid": {"value": 40},
				"ApplicationDate": {"value": "2025-03-10"}
			},
			{
				"DisplayRefNbr": {"value": "000101"},
				"DisplayDocType": {"value": "Invoice"},
				"AmountPaid": {"value": "60.5"}
			},
			{
				"DisplayDocType": {"value": "Invoice"}
			}
		]
	}`)

	apps, err := ParseApplications(models.KindPayment, "004321", raw)
	require.NoError(t, err)
	require.Len(t, apps, 2, "rows without a reference are dropped")

	assert.Equal(t, "000100", apps[0].InvoiceRef)
	assert.Equal(t, 40.0, apps[0].Amount)
	assert.Equal(t, "004321", apps[0].PaymentRef)
	assert.Equal(t, models.KindPayment, apps[0].PaymentKind)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), apps[0].AppliedAt)

	assert.Equal(t, "000101", apps[1].InvoiceRef)
	assert.Equal(t, 60.5, apps[1].Amount)
}

func TestWindowFilter(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)

	t.Run("payment window excludes credit memos", func(t *testing.T) {
		f := windowFilter(models.KindPayment, start, end)
		assert.Contains(t, f, "ApplicationDate ge datetimeoffset'2025-03-01T00:00:00'")
		assert.Contains(t, f, "ApplicationDate le datetimeoffset'2025-03-31T23:59:59'")
		assert.Contains(t, f, "Type ne 'Credit Memo'")
		assert.NotContains(t, f, "Type eq")
	})

	t.Run("voided window pins the type", func(t *testing.T) {
		f := windowFilter(models.KindVoidedPayment, start, end)
		assert.Contains(t, f, "Type eq 'Voided Payment'")
	})

	t.Run("invoice window uses the invoice date field", func(t *testing.T) {
		f := windowFilter(models.KindInvoice, start, end)
		assert.Contains(t, f, "Date ge datetimeoffset'2025-03-01T00:00:00'")
		assert.Contains(t, f, "Type ne 'Debit Memo'")
	})
}
