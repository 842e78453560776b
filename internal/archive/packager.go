// Package archive assembles the deployable static site of a finished batch
// into a single zip: docs/index.html, docs/verify.html,
// docs/certificates/<id>.<ext>, docs/verify/<id>.html and .json. The QR codes
// baked into the images assume exactly this path shape, so the layout is
// load-bearing and must not drift.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/batch"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/site"
)

var (
	ErrEmptyBatch       = errors.New("batch has no completed certificates")
	ErrPackagingFailure = errors.New("packaging failure")
)

const siteRoot = "docs/"

type Packager struct {
	log   *logger.Logger
	store assets.Store
	pages *site.Generator
}

func NewPackager(log *logger.Logger, store assets.Store, pages *site.Generator) *Packager {
	return &Packager{
		log:   log.With("component", "ArchivePackager"),
		store: store,
		pages: pages,
	}
}

// Package builds the archive for a batch and stores it under the batch id.
// Compression is retried once before the failure surfaces. Entries are
// written in row order with zeroed timestamps, so repackaging an unchanged
// batch is byte-identical.
func (p *Packager) Package(ctx context.Context, b *batch.Batch) ([]byte, error) {
	arts := b.ArtifactsInRowOrder()
	if len(arts) == 0 {
		return nil, ErrEmptyBatch
	}
	snap := b.Snapshot()

	index, err := p.pages.Index(site.Context{
		BaseURL:   snap.BaseURL,
		EventName: snap.EventName,
		EventDate: snap.EventDate,
	}, snap.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackagingFailure, err)
	}

	data, err := buildZip(arts, index, p.pages.VerifyRedirect())
	if err != nil {
		p.log.Warn("zip build failed, retrying once", "batch_id", b.ID, "error", err)
		if data, err = buildZip(arts, index, p.pages.VerifyRedirect()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPackagingFailure, err)
		}
	}

	filename := fmt.Sprintf("certificates_%s.zip", b.ID)
	if _, err := p.store.PutWithID(ctx, b.ID, assets.KindArchive, filename, data); err != nil {
		return nil, fmt.Errorf("%w: store archive: %v", ErrPackagingFailure, err)
	}
	p.log.Info("batch packaged", "batch_id", b.ID, "bytes", len(data), "certificates", len(arts))
	return data, nil
}

// Fetch returns the packaged archive for a batch id.
func (p *Packager) Fetch(ctx context.Context, batchID uuid.UUID) ([]byte, error) {
	_, data, err := p.store.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func buildZip(arts []batch.RowArtifact, index, redirect []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	writeEntry := func(name string, body []byte) error {
		// Explicit headers with the zero time keep output reproducible.
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	}

	if err := writeEntry(siteRoot+"index.html", index); err != nil {
		return nil, err
	}
	if err := writeEntry(siteRoot+"verify.html", redirect); err != nil {
		return nil, err
	}
	for _, a := range arts {
		if err := writeEntry(siteRoot+a.Record.ImagePath, a.Image); err != nil {
			return nil, err
		}
		if err := writeEntry(siteRoot+a.Record.PagePath, a.Page); err != nil {
			return nil, err
		}
		if err := writeEntry(siteRoot+"verify/"+a.Record.ID+".json", a.Meta); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
