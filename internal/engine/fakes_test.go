package engine

import (
	"context"
	"sync"
	"time"

	"github.com/finvista/acusync/internal/acumatica"
	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/store"
)

// fakeJobs is an in-memory syncjobs.Repository.
type fakeJobs struct {
	mu   sync.Mutex
	rows map[string]*models.SyncJob

	// onAdvance runs after each Advance, letting tests flip the cancel flag
	// mid-run.
	onAdvance func(job *models.SyncJob)
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{rows: map[string]*models.SyncJob{}}
}

func (f *fakeJobs) Create(_ context.Context, job *models.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.rows[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) FindActive(_ context.Context, kind models.Kind, start, end time.Time) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *models.SyncJob
	for _, j := range f.rows {
		if j.Kind != kind || j.Status.Terminal() || !j.Overlaps(start, end) {
			continue
		}
		if newest == nil || j.CreatedAt.After(newest.CreatedAt) {
			newest = j
		}
	}
	if newest == nil {
		return nil, common.ErrorNotFound
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeJobs) MarkRunning(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.rows[id]
	j.Status = models.JobRunning
	j.UpdatedAt = time.Now()
	return nil
}

func (f *fakeJobs) Advance(_ context.Context, id string, delta models.Progress, currentItem string, total int) error {
	f.mu.Lock()
	j := f.rows[id]
	j.Progress.Created += delta.Created
	j.Progress.Updated += delta.Updated
	j.Progress.ApplicationsSynced += delta.ApplicationsSynced
	j.Progress.FilesSynced += delta.FilesSynced
	j.Progress.RecordsProcessed += delta.RecordsProcessed
	j.CurrentItem = currentItem
	j.Total = total
	j.UpdatedAt = time.Now()
	hook := f.onAdvance
	f.mu.Unlock()

	if hook != nil {
		hook(j)
	}
	return nil
}

func (f *fakeJobs) Finish(_ context.Context, id string, status models.JobStatus, errorMessage string, errs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.rows[id]
	j.Status = status
	j.ErrorMessage = errorMessage
	j.Errors = errs
	now := time.Now()
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (f *fakeJobs) RequestCancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].CancelRequested = true
	return nil
}

// fakeRemote is an in-memory Remote. Window membership is computed from the
// configured documents the same way the real reader filters.
type fakeRemote struct {
	docs  []*models.Document
	byRef map[string]*models.Document // "kind/ref"
	apps  map[string][]models.Application
	files map[string][]acumatica.RemoteFile
	blobs map[string][]byte

	pageSize   int
	sessionErr error
	logins     int
	forceNews  int

	fetchErrFor map[string]error // identity -> error from page processing
}

func newFakeRemote(pageSize int) *fakeRemote {
	return &fakeRemote{
		byRef:       map[string]*models.Document{},
		apps:        map[string][]models.Application{},
		files:       map[string][]acumatica.RemoteFile{},
		blobs:       map[string][]byte{},
		fetchErrFor: map[string]error{},
		pageSize:    pageSize,
	}
}

func (f *fakeRemote) add(doc *models.Document) {
	f.docs = append(f.docs, doc)
	f.byRef[doc.Identity()] = doc
}

func (f *fakeRemote) EnsureSession(_ context.Context, forceNew bool) error {
	if f.sessionErr != nil {
		return f.sessionErr
	}
	f.logins++
	if forceNew {
		f.forceNews++
	}
	return nil
}

func (f *fakeRemote) windowDocs(kind models.Kind, start, end time.Time) []*models.Document {
	var out []*models.Document
	for _, d := range f.docs {
		if d.Kind.InWindowOf(kind) && !d.DocDate.Before(start) && !d.DocDate.After(end) {
			out = append(out, d)
		}
	}
	return out
}

type fakeIterator struct {
	docs []*models.Document
	page int
	size int
}

func (it *fakeIterator) Reset() { it.page = 0 }

func (it *fakeIterator) Next(_ context.Context) ([]*models.Document, error) {
	from := it.page * it.size
	if from >= len(it.docs) {
		return nil, nil
	}
	to := from + it.size
	if to > len(it.docs) {
		to = len(it.docs)
	}
	it.page++
	return it.docs[from:to], nil
}

func (f *fakeRemote) FetchWindow(kind models.Kind, start, end time.Time) PageIterator {
	return &fakeIterator{docs: f.windowDocs(kind, start, end), size: f.pageSize}
}

func (f *fakeRemote) CountWindow(_ context.Context, kind models.Kind, start, end time.Time) (int, error) {
	return len(f.windowDocs(kind, start, end)), nil
}

func (f *fakeRemote) ListWindowRefs(_ context.Context, kind models.Kind, start, end time.Time) ([]string, error) {
	var refs []string
	for _, d := range f.windowDocs(kind, start, end) {
		refs = append(refs, d.RefNbr)
	}
	return refs, nil
}

func (f *fakeRemote) FetchByRef(_ context.Context, kind models.Kind, refNbr string) (*models.Document, error) {
	d, ok := f.byRef[string(kind)+"/"+refNbr]
	if !ok {
		return nil, common.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRemote) FetchApplications(_ context.Context, kind models.Kind, refNbr string) ([]models.Application, error) {
	key := string(kind) + "/" + refNbr
	if err, ok := f.fetchErrFor[key]; ok {
		return nil, err
	}
	return f.apps[key], nil
}

func (f *fakeRemote) ListFiles(_ context.Context, kind models.Kind, refNbr string) ([]acumatica.RemoteFile, error) {
	return f.files[string(kind)+"/"+refNbr], nil
}

func (f *fakeRemote) DownloadFile(_ context.Context, href string) ([]byte, error) {
	return f.blobs[href], nil
}

// fakeStore is an in-memory engine.Store.
type fakeStore struct {
	docs    map[string]*models.Document
	apps    map[string][]models.Application
	atts    map[string][]byte // storage key -> bytes
	attKeys map[string]bool   // "ref/fileID"
	fixes   []string

	upsertErrFor map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:         map[string]*models.Document{},
		apps:         map[string][]models.Application{},
		atts:         map[string][]byte{},
		attKeys:      map[string]bool{},
		upsertErrFor: map[string]error{},
	}
}

func (f *fakeStore) Upsert(_ context.Context, doc *models.Document, _ string) (store.UpsertResult, error) {
	id := doc.Identity()
	if err, ok := f.upsertErrFor[id]; ok {
		return store.UpsertResult{}, err
	}
	_, existed := f.docs[id]
	cp := *doc
	f.docs[id] = &cp
	if existed {
		return store.UpsertResult{Action: store.Updated, Changed: true}, nil
	}
	return store.UpsertResult{Action: store.Created, Changed: true}, nil
}

func (f *fakeStore) ReplaceApplications(_ context.Context, kind models.Kind, paymentRef string, apps []models.Application) error {
	f.apps[string(kind)+"/"+paymentRef] = apps
	return nil
}

func (f *fakeStore) SaveAttachment(_ context.Context, att *models.Attachment, data []byte) (bool, error) {
	key := att.RefNbr + "/" + att.FileID
	if f.attKeys[key] {
		return false, nil
	}
	f.attKeys[key] = true
	f.atts[att.StorageKey] = data
	return true, nil
}

func (f *fakeStore) HasAttachment(_ context.Context, refNbr, fileID string) (bool, error) {
	return f.attKeys[refNbr+"/"+fileID], nil
}

func (f *fakeStore) ApplyRemoteDate(_ context.Context, kind models.Kind, refNbr string, _, remoteDate time.Time) error {
	f.docs[string(kind)+"/"+refNbr].DocDate = remoteDate
	f.fixes = append(f.fixes, refNbr)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, kind models.Kind, refNbr string) (bool, error) {
	_, ok := f.docs[string(kind)+"/"+refNbr]
	return ok, nil
}

func (f *fakeStore) CountWindow(_ context.Context, kind models.Kind, start, end time.Time) (int, error) {
	docs, _ := f.ListWindow(context.Background(), kind, start, end)
	return len(docs), nil
}

func (f *fakeStore) ListWindow(_ context.Context, kind models.Kind, start, end time.Time) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range f.docs {
		if d.Kind.InWindowOf(kind) && !d.DocDate.Before(start) && !d.DocDate.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}
