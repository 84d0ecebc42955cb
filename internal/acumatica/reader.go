package acumatica

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/retryx"
)

// excludedTypes lists remote document types never synced, per policy, keyed
// by entity. Credit memos are always excluded from payment windows.
var excludedTypes = map[string][]string{
	"Payment": {"Credit Memo"},
	"Invoice": {"Credit Memo", "Debit Memo"},
}

// Reader issues windowed, paginated queries and normalizes the results into
// canonical documents. Pagination state is just a $skip offset, so iterators
// are restartable and hold nothing open across calls.
type Reader struct {
	client   *Client
	sessions *SessionManager
	pageSize int
	retry    retryx.Policy
	logger   logging.Logger
}

// NewReader builds a reader over the given client and session manager.
func NewReader(client *Client, sessions *SessionManager, pageSize int, retry retryx.Policy, logger logging.Logger) *Reader {
	return &Reader{
		client:   client,
		sessions: sessions,
		pageSize: pageSize,
		retry:    retry,
		logger:   logger,
	}
}

// withSession runs fn with a valid session cookie. On a 401 it delegates to
// the session manager's forceNew path exactly once; a second rejection is
// terminal for the call.
func (r *Reader) withSession(ctx context.Context, fn func(cookie string) error) error {
	s, err := r.sessions.Acquire(ctx, false)
	if err != nil {
		return err
	}
	err = r.retry.Do(ctx, func() error { return fn(s.Cookie) })
	if err == nil || !errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	r.logger.Warn(ctx, "remote rejected session mid-fetch; forcing a new login")
	s, err = r.sessions.Acquire(ctx, true)
	if err != nil {
		return err
	}
	return r.retry.Do(ctx, func() error { return fn(s.Cookie) })
}

const odataTimeLayout = "2006-01-02T15:04:05"

// windowFilter builds the server-side filter restricting the kind's primary
// date field to [start, end] inclusive, minus the excluded document types.
func windowFilter(kind models.Kind, start, end time.Time) string {
	df := kind.DateField()
	f := fmt.Sprintf("%s ge datetimeoffset'%s' and %s le datetimeoffset'%s'",
		df, start.UTC().Format(odataTimeLayout), df, end.UTC().Format(odataTimeLayout))
	for _, t := range excludedTypes[kind.Entity()] {
		f += fmt.Sprintf(" and Type ne '%s'", t)
	}
	if kind == models.KindVoidedPayment {
		f += " and Type eq 'Voided Payment'"
	}
	return f
}

// PageIterator lazily walks the window one page at a time.
type PageIterator struct {
	r     *Reader
	kind  models.Kind
	start time.Time
	end   time.Time
	skip  int
	done  bool
}

// FetchWindow returns a lazy, finite, restartable sequence of canonical
// records whose primary date falls inside [start, end].
func (r *Reader) FetchWindow(kind models.Kind, start, end time.Time) *PageIterator {
	return &PageIterator{r: r, kind: kind, start: start, end: end}
}

// Reset rewinds the iterator to the first page.
func (it *PageIterator) Reset() {
	it.skip = 0
	it.done = false
}

// Next returns the next page of canonical records, or a nil slice once the
// window is exhausted. Remote documents whose type is not synced are skipped.
func (it *PageIterator) Next(ctx context.Context) ([]*models.Document, error) {
	for !it.done {
		raws, err := it.r.listPage(ctx, it.kind, it.start, it.end, it.skip)
		if err != nil {
			return nil, err
		}
		if len(raws) < it.r.pageSize {
			it.done = true
		}
		it.skip += len(raws)

		docs := make([]*models.Document, 0, len(raws))
		for _, raw := range raws {
			doc, ok, err := it.r.parseRaw(ctx, it.kind, raw)
			if err != nil {
				return nil, err
			}
			if ok {
				docs = append(docs, doc)
			}
		}
		if len(docs) > 0 {
			return docs, nil
		}
	}
	return nil, nil
}

func (r *Reader) listPage(ctx context.Context, kind models.Kind, start, end time.Time, skip int) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	err := r.withSession(ctx, func(cookie string) error {
		var err error
		raws, err = r.client.List(ctx, cookie, kind.Entity(), ListQuery{
			Filter: windowFilter(kind, start, end),
			Skip:   skip,
			Top:    r.pageSize,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s page at offset %d: %w", kind, skip, err)
	}
	return raws, nil
}

// parseRaw maps one raw record to its canonical kind. The second return is
// false for document types the engine does not sync.
func (r *Reader) parseRaw(ctx context.Context, windowKind models.Kind, raw json.RawMessage) (*models.Document, bool, error) {
	typ, err := remoteTypeOf(raw)
	if err != nil {
		return nil, false, fmt.Errorf("reading document type: %w", err)
	}
	kind, ok := kindFromRemoteType[typ]
	if !ok {
		r.logger.Debug(ctx, "skipping unsupported document type", "type", typ)
		return nil, false, nil
	}
	if !kind.InWindowOf(windowKind) {
		return nil, false, nil
	}
	doc, err := ParseDocument(kind, raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// CountWindow counts the remote records the window would sync. Used by the
// reconciler; pages through reference numbers only.
func (r *Reader) CountWindow(ctx context.Context, kind models.Kind, start, end time.Time) (int, error) {
	count := 0
	skip := 0
	for {
		var raws []json.RawMessage
		err := r.withSession(ctx, func(cookie string) error {
			var err error
			raws, err = r.client.List(ctx, cookie, kind.Entity(), ListQuery{
				Filter: windowFilter(kind, start, end),
				Select: "Type,ReferenceNbr",
				Skip:   skip,
				Top:    r.pageSize,
			})
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("counting %s window: %w", kind, err)
		}

		for _, raw := range raws {
			typ, err := remoteTypeOf(raw)
			if err != nil {
				return 0, err
			}
			if k, ok := kindFromRemoteType[typ]; ok && k.InWindowOf(kind) {
				count++
			}
		}

		skip += len(raws)
		if len(raws) < r.pageSize {
			return count, nil
		}
	}
}

// ListWindowRefs returns the normalized reference numbers the window would
// sync, for set comparison against local rows.
func (r *Reader) ListWindowRefs(ctx context.Context, kind models.Kind, start, end time.Time) ([]string, error) {
	var refs []string
	it := r.FetchWindow(kind, start, end)
	for {
		docs, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			return refs, nil
		}
		for _, d := range docs {
			refs = append(refs, d.RefNbr)
		}
	}
}

// FetchByRef fetches the current remote state of one identity, independent of
// any window. Returns common.ErrRecordNotFound when the remote no longer has it.
func (r *Reader) FetchByRef(ctx context.Context, kind models.Kind, refNbr string) (*models.Document, error) {
	var raw json.RawMessage
	err := r.withSession(ctx, func(cookie string) error {
		var err error
		raw, err = r.client.GetByKeys(ctx, cookie, kind.Entity(), []string{kind.RemoteType(), refNbr}, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return ParseDocument(kind, raw)
}

// FetchApplications fetches a payment's application history rows.
func (r *Reader) FetchApplications(ctx context.Context, kind models.Kind, refNbr string) ([]models.Application, error) {
	var raw json.RawMessage
	err := r.withSession(ctx, func(cookie string) error {
		var err error
		raw, err = r.client.GetByKeys(ctx, cookie, kind.Entity(), []string{kind.RemoteType(), refNbr}, "ApplicationHistory")
		return err
	})
	if err != nil {
		return nil, err
	}
	return ParseApplications(kind, refNbr, raw)
}

// ListFiles enumerates the files linked to a document through its note.
func (r *Reader) ListFiles(ctx context.Context, kind models.Kind, refNbr string) ([]RemoteFile, error) {
	var files []RemoteFile
	err := r.withSession(ctx, func(cookie string) error {
		var err error
		files, err = r.client.GetFiles(ctx, cookie, kind.Entity(), []string{kind.RemoteType(), refNbr})
		return err
	})
	return files, err
}

// DownloadFile fetches the bytes of one linked file.
func (r *Reader) DownloadFile(ctx context.Context, href string) ([]byte, error) {
	var data []byte
	err := r.withSession(ctx, func(cookie string) error {
		var err error
		data, err = r.client.Download(ctx, cookie, href)
		return err
	})
	return data, err
}
