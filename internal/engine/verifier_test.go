package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
)

func seedLocal(t *testing.T, st *fakeStore, docs ...*models.Document) {
	t.Helper()
	for _, d := range docs {
		_, err := st.Upsert(context.Background(), d, models.SourceWindowSync)
		require.NoError(t, err)
	}
}

func TestVerifyCleanWindow(t *testing.T) {
	remote := newFakeRemote(10)
	remote.add(paymentDoc("000001", "Open", 5))
	st := newFakeStore()
	seedLocal(t, st, paymentDoc("000001", "Open", 5))

	v := NewVerifier(remote, st, logging.Discard())
	report, err := v.Verify(context.Background(), models.KindPayment, windowStart, windowEnd, false)
	require.NoError(t, err)

	assert.Empty(t, report.StalePayments)
	assert.Empty(t, report.InAcumaticaNotDB)
	assert.Empty(t, report.InDBNotAcumatica)
	assert.Empty(t, report.FixedPayments)
}

func TestVerifyFindsDateDrift(t *testing.T) {
	// Remote moved the payment out of March; the local row still has it inside.
	remote := newFakeRemote(10)
	moved := paymentDoc("000001", "Open", 5)
	moved.DocDate = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	remote.add(moved)

	st := newFakeStore()
	seedLocal(t, st, paymentDoc("000001", "Open", 5))

	v := NewVerifier(remote, st, logging.Discard())
	report, err := v.Verify(context.Background(), models.KindPayment, windowStart, windowEnd, false)
	require.NoError(t, err)

	require.Len(t, report.StalePayments, 1)
	stale := report.StalePayments[0]
	assert.Equal(t, "000001", stale.RefNbr)
	require.NotNil(t, stale.AcumaticaDate)
	assert.True(t, stale.AcumaticaDate.Equal(moved.DocDate))
	assert.Empty(t, report.FixedPayments)

	// Dry run: local date untouched.
	local := st.docs["payment/000001"]
	assert.True(t, local.DocDate.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
}

func TestVerifyFixWritesRemoteDate(t *testing.T) {
	remote := newFakeRemote(10)
	moved := paymentDoc("000001", "Open", 5)
	moved.DocDate = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	remote.add(moved)

	st := newFakeStore()
	seedLocal(t, st, paymentDoc("000001", "Open", 5))

	v := NewVerifier(remote, st, logging.Discard())
	report, err := v.Verify(context.Background(), models.KindPayment, windowStart, windowEnd, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"000001"}, report.FixedPayments)
	assert.Equal(t, []string{"000001"}, st.fixes)
	assert.True(t, st.docs["payment/000001"].DocDate.Equal(moved.DocDate))
}

func TestVerifyReportsMissingOnBothSides(t *testing.T) {
	remote := newFakeRemote(10)
	remote.add(paymentDoc("000002", "Open", 6))

	st := newFakeStore()
	// 000001 exists locally but the remote deleted it entirely.
	seedLocal(t, st, paymentDoc("000001", "Open", 5))

	v := NewVerifier(remote, st, logging.Discard())
	report, err := v.Verify(context.Background(), models.KindPayment, windowStart, windowEnd, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"000002"}, report.InAcumaticaNotDB)
	assert.Equal(t, []string{"000001"}, report.InDBNotAcumatica)
	assert.Empty(t, report.StalePayments)
}

func TestVerifyVoidedRemoteWithoutDate(t *testing.T) {
	remote := newFakeRemote(10)
	gone := paymentDoc("000001", "Voided", 5)
	gone.DocDate = time.Time{}
	remote.byRef[gone.Identity()] = gone

	st := newFakeStore()
	seedLocal(t, st, paymentDoc("000001", "Open", 5))

	v := NewVerifier(remote, st, logging.Discard())
	report, err := v.Verify(context.Background(), models.KindPayment, windowStart, windowEnd, true)
	require.NoError(t, err)

	require.Len(t, report.StalePayments, 1)
	stale := report.StalePayments[0]
	assert.Nil(t, stale.AcumaticaDate)
	assert.Contains(t, stale.AcumaticaStatus, "Voided")

	// No usable remote date means nothing to fix.
	assert.Empty(t, report.FixedPayments)
}
