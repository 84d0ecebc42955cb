package engine

import (
	"context"
	"fmt"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/models"
)

// FetchAttachments pulls down the files linked to one document and stores
// each exactly once per (reference, file id). Already-stored pairs are
// skipped before the download. Returns the number of newly stored files plus
// any error that cut the pass short; files stored before the error are kept.
func (e *Engine) FetchAttachments(ctx context.Context, kind models.Kind, refNbr string) (int, error) {
	files, err := e.remote.ListFiles(ctx, kind, refNbr)
	if err != nil {
		return 0, fmt.Errorf("listing files for %s/%s: %w", kind, refNbr, err)
	}

	stored := 0
	for _, f := range files {
		exists, err := e.store.HasAttachment(ctx, refNbr, f.ID)
		if err != nil {
			return stored, err
		}
		if exists {
			continue
		}

		data, err := e.remote.DownloadFile(ctx, f.Href)
		if err != nil {
			return stored, fmt.Errorf("downloading %s: %w", f.Filename, err)
		}

		name := common.SanitizeFilename(f.Filename)
		att := &models.Attachment{
			Kind:       kind,
			RefNbr:     refNbr,
			FileID:     f.ID,
			Filename:   f.Filename,
			StorageKey: fmt.Sprintf("%s/%s/%d/%s", kind, refNbr, e.clock().Unix(), name),
			Size:       int64(len(data)),
			CheckImage: common.IsCheckImage(f.Filename),
		}
		isNew, err := e.store.SaveAttachment(ctx, att, data)
		if err != nil {
			return stored, err
		}
		if isNew {
			stored++
		}
	}
	return stored, nil
}
