package acumatica

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/models"
)

// canonicalField names a target field of the canonical record. The mapping
// tables below are the single source of truth for remote-to-canonical field
// translation; no caller maps fields on its own.
type canonicalField int

const (
	fieldRefNbr canonicalField = iota
	fieldStatus
	fieldDate
	fieldAmount
	fieldCustomer
	fieldDescription
)

type fieldMapping struct {
	remote string
	field  canonicalField
}

var documentFieldMaps = map[models.Kind][]fieldMapping{
	models.KindPayment: {
		{"ReferenceNbr", fieldRefNbr},
		{"Status", fieldStatus},
		{"ApplicationDate", fieldDate},
		{"PaymentAmount", fieldAmount},
		{"CustomerID", fieldCustomer},
		{"Description", fieldDescription},
	},
	models.KindVoidedPayment: {
		{"ReferenceNbr", fieldRefNbr},
		{"Status", fieldStatus},
		{"ApplicationDate", fieldDate},
		{"PaymentAmount", fieldAmount},
		{"CustomerID", fieldCustomer},
		{"Description", fieldDescription},
	},
	models.KindInvoice: {
		{"ReferenceNbr", fieldRefNbr},
		{"Status", fieldStatus},
		{"Date", fieldDate},
		{"Amount", fieldAmount},
		{"Customer", fieldCustomer},
		{"Description", fieldDescription},
	},
}

// StatusVoided is the remote payment status whose document also exists as a
// parallel "Voided Payment" record. It is the only status pair known to have
// that shape; any other pair needing it should become configuration, not
// another special case.
const StatusVoided = "Voided"

// kindFromRemoteType maps a remote document type to the canonical kind it is
// synced as. Types absent from the map (Prepayment, Customer Refund, the
// excluded Credit Memo) are skipped by the reader.
var kindFromRemoteType = map[string]models.Kind{
	"Payment":        models.KindPayment,
	"Voided Payment": models.KindVoidedPayment,
	"Invoice":        models.KindInvoice,
}

// unwrapValue removes the Acumatica {"value": ...} envelope. Bare scalars
// pass through so both entity shapes decode identically.
func unwrapValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '{' {
		var envelope struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, err
		}
		return envelope.Value, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// remote timestamps arrive in a handful of ISO-8601 variants.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coerceString(v any) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(value), nil
	default:
		return "", fmt.Errorf("cannot coerce %T to string", v)
	}
}

func coerceTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot coerce %T to time", v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func coerceNumber(v any) (float64, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return value, nil
	case string:
		if value == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to number: %w", value, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to number", v)
	}
}

// ParseDocument normalizes one raw remote record of the given kind into a
// canonical document, keeping the raw payload snapshot.
func ParseDocument(kind models.Kind, raw json.RawMessage) (*models.Document, error) {
	mappings, ok := documentFieldMaps[kind]
	if !ok {
		return nil, fmt.Errorf("no field mapping for kind %q", kind)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", kind, err)
	}

	doc := &models.Document{Kind: kind, RawPayload: raw}
	for _, m := range mappings {
		v, err := unwrapValue(fields[m.remote])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", m.remote, err)
		}
		if v == nil {
			continue
		}

		switch m.field {
		case fieldRefNbr:
			s, err := coerceString(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.RefNbr = common.NormalizeRefNbr(s)
		case fieldStatus:
			s, err := coerceString(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.Status = s
		case fieldDate:
			t, err := coerceTime(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.DocDate = t
		case fieldAmount:
			n, err := coerceNumber(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.Amount = n
		case fieldCustomer:
			s, err := coerceString(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.CustomerID = s
		case fieldDescription:
			s, err := coerceString(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", m.remote, err)
			}
			doc.Description = s
		}
	}

	if doc.RefNbr == "" {
		return nil, fmt.Errorf("%s record has no reference number", kind)
	}
	return doc, nil
}

// remoteTypeOf extracts the document type field without full parsing.
func remoteTypeOf(raw json.RawMessage) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", err
	}
	v, err := unwrapValue(fields["Type"])
	if err != nil {
		return "", err
	}
	return coerceString(v)
}

// ParseApplications extracts the payment's application history rows. Each row
// records how much of the payment was applied to which adjusted document.
func ParseApplications(paymentKind models.Kind, paymentRef string, raw json.RawMessage) ([]models.Application, error) {
	var envelope struct {
		ApplicationHistory []map[string]json.RawMessage `json:"ApplicationHistory"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding application history: %w", err)
	}

	apps := make([]models.Application, 0, len(envelope.ApplicationHistory))
	for _, row := range envelope.ApplicationHistory {
		app := models.Application{PaymentKind: paymentKind, PaymentRef: paymentRef}

		if v, err := unwrapValue(row["DisplayRefNbr"]); err == nil && v != nil {
			if s, err := coerceString(v); err == nil {
				app.InvoiceRef = common.NormalizeRefNbr(s)
			}
		}
		if v, err := unwrapValue(row["DisplayDocType"]); err == nil && v != nil {
			app.DocType, _ = coerceString(v)
		}
		if v, err := unwrapValue(row["AmountPaid"]); err == nil && v != nil {
			if n, err := coerceNumber(v); err == nil {
				app.Amount = n
			}
		}
		if v, err := unwrapValue(row["ApplicationDate"]); err == nil && v != nil {
			if t, err := coerceTime(v); err == nil {
				app.AppliedAt = t
			}
		}

		if app.InvoiceRef == "" {
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}
