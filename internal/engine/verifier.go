package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
)

// StaleRecord is a local record whose remote counterpart has moved out of the
// window. AcumaticaDate is nil when the remote no longer exposes a usable
// date; AcumaticaStatus then explains why (voided, deleted).
type StaleRecord struct {
	RefNbr          string     `json:"refNbr"`
	DBDate          time.Time  `json:"dbDate"`
	AcumaticaDate   *time.Time `json:"acumaticaDate,omitempty"`
	AcumaticaStatus string     `json:"acumaticaStatus,omitempty"`
}

// VerifyReport is the result of one drift verification pass.
type VerifyReport struct {
	Kind        models.Kind `json:"kind"`
	WindowStart time.Time   `json:"windowStart"`
	WindowEnd   time.Time   `json:"windowEnd"`
	Fix         bool        `json:"fix"`

	StalePayments    []StaleRecord `json:"stalePayments"`
	FixedPayments    []string      `json:"fixedPayments"`
	InAcumaticaNotDB []string      `json:"inAcumaticaNotDb"`
	InDBNotAcumatica []string      `json:"inDbNotAcumatica"`
}

// Verifier finds records whose remote date or existence has drifted from the
// local copy. Count reconciliation says THAT the window diverges; the
// verifier says WHICH records and why.
type Verifier struct {
	remote Remote
	store  Store
	logger logging.Logger
}

// NewVerifier builds a drift verifier.
func NewVerifier(remote Remote, st Store, logger logging.Logger) *Verifier {
	return &Verifier{remote: remote, store: st, logger: logger}
}

// Verify compares the window membership on both sides, then re-queries each
// suspect record by identity (window filters hide records whose date moved,
// so only a direct fetch shows the remote's current truth). With fix=true the
// remote date is written locally and audited; with fix=false nothing mutates.
func (v *Verifier) Verify(ctx context.Context, kind models.Kind, start, end time.Time, fix bool) (*VerifyReport, error) {
	report := &VerifyReport{Kind: kind, WindowStart: start, WindowEnd: end, Fix: fix}

	remoteRefs, err := v.remote.ListWindowRefs(ctx, kind, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing remote %s window: %w", kind, err)
	}
	remoteSet := make(map[string]struct{}, len(remoteRefs))
	for _, ref := range remoteRefs {
		remoteSet[ref] = struct{}{}
	}

	localDocs, err := v.store.ListWindow(ctx, kind, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing local %s window: %w", kind, err)
	}
	localSet := make(map[string]struct{}, len(localDocs))
	for _, d := range localDocs {
		localSet[d.RefNbr] = struct{}{}
	}

	for _, ref := range remoteRefs {
		if _, ok := localSet[ref]; !ok {
			report.InAcumaticaNotDB = append(report.InAcumaticaNotDB, ref)
		}
	}

	for _, local := range localDocs {
		if _, ok := remoteSet[local.RefNbr]; ok {
			continue
		}
		if err := v.checkSuspect(ctx, local, start, end, fix, report); err != nil {
			return nil, err
		}
	}

	v.logger.Info(ctx, "drift verification finished",
		"kind", kind, "fix", fix,
		"stale", len(report.StalePayments), "fixed", len(report.FixedPayments),
		"remote_only", len(report.InAcumaticaNotDB), "local_only", len(report.InDBNotAcumatica))
	return report, nil
}

// checkSuspect re-queries one locally-present, remotely-missing record by
// identity and files it into the report.
func (v *Verifier) checkSuspect(ctx context.Context, local *models.Document, start, end time.Time, fix bool, report *VerifyReport) error {
	remote, err := v.remote.FetchByRef(ctx, local.Kind, local.RefNbr)
	if errors.Is(err, common.ErrRecordNotFound) {
		report.InDBNotAcumatica = append(report.InDBNotAcumatica, local.RefNbr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("re-querying %s: %w", local.Identity(), err)
	}

	stale := StaleRecord{RefNbr: local.RefNbr, DBDate: local.DocDate}

	if remote.DocDate.IsZero() {
		stale.AcumaticaStatus = fmt.Sprintf("no usable date (remote status %q)", remote.Status)
		report.StalePayments = append(report.StalePayments, stale)
		return nil
	}

	if !remote.DocDate.Before(start) && !remote.DocDate.After(end) {
		// The remote record is in the window after all; it was hidden from the
		// window listing by a type exclusion or kind mapping, not by drift.
		return nil
	}

	date := remote.DocDate
	stale.AcumaticaDate = &date
	stale.AcumaticaStatus = remote.Status
	report.StalePayments = append(report.StalePayments, stale)

	if fix {
		if err := v.store.ApplyRemoteDate(ctx, local.Kind, local.RefNbr, local.DocDate, remote.DocDate); err != nil {
			return err
		}
		report.FixedPayments = append(report.FixedPayments, local.RefNbr)
	}
	return nil
}
