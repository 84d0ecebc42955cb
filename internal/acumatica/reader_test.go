package acumatica

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/retryx"
)

// fakeAcumatica serves a login endpoint and a paginated Payment listing.
type fakeAcumatica struct {
	records []string

	logins   atomic.Int32
	rejected atomic.Int32
	reject   func(cookie string) bool
}

func (f *fakeAcumatica) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/entity/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		n := f.logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: ".ASPXAUTH", Value: fmt.Sprintf("t%d", n)})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/entity/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/entity/Default/24.200.001/Payment", func(w http.ResponseWriter, r *http.Request) {
		if f.reject != nil && f.reject(r.Header.Get("Cookie")) {
			f.rejected.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))

		end := skip + top
		if end > len(f.records) {
			end = len(f.records)
		}
		if skip > len(f.records) {
			skip = len(f.records)
		}
		w.Header().Set("Content-Type", "application/json")
		out := "["
		for i, rec := range f.records[skip:end] {
			if i > 0 {
				out += ","
			}
			out += rec
		}
		out += "]"
		_, _ = w.Write([]byte(out))
	})
	mux.HandleFunc("/entity/Default/24.200.001/Payment/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func paymentRecord(typ, ref, status, date string) string {
	return fmt.Sprintf(`{
		"Type": {"value": %q},
		"ReferenceNbr": {"value": %q},
		"Status": {"value": %q},
		"ApplicationDate": {"value": %q},
		"PaymentAmount": {"value": 10}
	}`, typ, ref, status, date)
}

func newTestReader(t *testing.T, f *fakeAcumatica, pageSize int) *Reader {
	t.Helper()
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)

	policy := retryx.Policy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	client := NewClient(ts.URL, "24.200.001", 5*time.Second, logging.Discard())
	sessions := NewSessionManager(client, &fakeSessionRepo{}, Credentials{Name: "admin"},
		time.Hour, time.Minute, policy, logging.Discard())
	return NewReader(client, sessions, pageSize, policy, logging.Discard())
}

func collect(t *testing.T, it *PageIterator) []*models.Document {
	t.Helper()
	var all []*models.Document
	for {
		docs, err := it.Next(context.Background())
		require.NoError(t, err)
		if docs == nil {
			return all
		}
		all = append(all, docs...)
	}
}

func TestFetchWindowPaginatesAndSkipsUnmappedTypes(t *testing.T) {
	f := &fakeAcumatica{records: []string{
		paymentRecord("Payment", "000001", "Open", "2025-03-02"),
		paymentRecord("Payment", "000002", "Closed", "2025-03-05"),
		paymentRecord("Prepayment", "000003", "Open", "2025-03-06"),
		paymentRecord("Voided Payment", "000004", "Voided", "2025-03-08"),
		paymentRecord("Payment", "000005", "Open", "2025-03-09"),
	}}
	r := newTestReader(t, f, 2)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	docs := collect(t, r.FetchWindow(models.KindPayment, start, end))

	require.Len(t, docs, 4, "prepayments are not a synced type")
	assert.Equal(t, "000001", docs[0].RefNbr)
	assert.Equal(t, models.KindVoidedPayment, docs[2].Kind, "voided payments share the payment window")
	assert.Equal(t, "000005", docs[3].RefNbr)
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestFetchWindowReset(t *testing.T) {
	f := &fakeAcumatica{records: []string{
		paymentRecord("Payment", "000001", "Open", "2025-03-02"),
		paymentRecord("Payment", "000002", "Open", "2025-03-03"),
		paymentRecord("Payment", "000003", "Open", "2025-03-04"),
	}}
	r := newTestReader(t, f, 2)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	it := r.FetchWindow(models.KindPayment, start, end)

	first := collect(t, it)
	require.Len(t, first, 3)

	it.Reset()
	second := collect(t, it)
	require.Len(t, second, 3)
}

func TestRejectedSessionForcesOneNewLogin(t *testing.T) {
	f := &fakeAcumatica{records: []string{
		paymentRecord("Payment", "000001", "Open", "2025-03-02"),
	}}
	// The first cookie is rejected; the forced re-login issues t2.
	f.reject = func(cookie string) bool { return cookie == ".ASPXAUTH=t1" }
	r := newTestReader(t, f, 10)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	docs := collect(t, r.FetchWindow(models.KindPayment, start, end))

	require.Len(t, docs, 1)
	assert.Equal(t, int32(2), f.logins.Load(), "exactly one forced re-login")
	assert.Equal(t, int32(1), f.rejected.Load(), "a 401 is not blindly retried")
}

func TestCountWindow(t *testing.T) {
	f := &fakeAcumatica{records: []string{
		paymentRecord("Payment", "000001", "Open", "2025-03-02"),
		paymentRecord("Prepayment", "000002", "Open", "2025-03-03"),
		paymentRecord("Payment", "000003", "Open", "2025-03-04"),
		paymentRecord("Voided Payment", "000004", "Voided", "2025-03-05"),
	}}
	r := newTestReader(t, f, 3)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	n, err := r.CountWindow(context.Background(), models.KindPayment, start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListWindowRefs(t *testing.T) {
	f := &fakeAcumatica{records: []string{
		paymentRecord("Payment", "2", "Open", "2025-03-02"),
		paymentRecord("Payment", "000010", "Open", "2025-03-03"),
	}}
	r := newTestReader(t, f, 10)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	refs, err := r.ListWindowRefs(context.Background(), models.KindPayment, start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"000002", "000010"}, refs)
}

func TestFetchByRefNotFound(t *testing.T) {
	f := &fakeAcumatica{}
	r := newTestReader(t, f, 10)

	_, err := r.FetchByRef(context.Background(), models.KindPayment, "999999")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}
