package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/certgen-backend/internal/certs"
	"github.com/yungbote/certgen-backend/internal/config"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/site"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

var (
	ErrInvalidNameColumn = errors.New("name column is not a declared column")
	ErrNotFound          = errors.New("batch not found")
)

type GenerateRequest struct {
	Template   []byte
	Table      *tabular.RecipientTable
	NameColumn string
	EventName  string
	EventDate  string
	BaseURL    string
}

type Options struct {
	Workers    int
	RowTimeout time.Duration
	EmptyNames config.EmptyNamePolicy
	BatchTTL   time.Duration
}

// Orchestrator fans per-row work across a bounded pool and tracks every
// batch it has run until the batch expires.
type Orchestrator struct {
	log     *logger.Logger
	comp    *certs.Compositor
	pages   *site.Generator
	opts    Options
	baseCtx context.Context

	mu      sync.RWMutex
	batches map[uuid.UUID]*entry
}

type entry struct {
	batch     *Batch
	expiresAt time.Time
}

func NewOrchestrator(ctx context.Context, log *logger.Logger, comp *certs.Compositor, pages *site.Generator, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	o := &Orchestrator{
		log:     log.With("component", "BatchOrchestrator"),
		comp:    comp,
		pages:   pages,
		opts:    opts,
		baseCtx: ctx,
		batches: make(map[uuid.UUID]*entry),
	}
	if opts.BatchTTL > 0 {
		go o.janitor(ctx)
	}
	return o
}

// Generate runs a batch to a terminal state. Row failures never abort
// sibling rows; ctx cancellation stops scheduling new rows and records the
// unscheduled remainder as failed.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*Batch, error) {
	b, err := o.admit(req)
	if err != nil {
		return nil, err
	}
	o.run(ctx, b, req)
	return b, nil
}

// Start registers the batch and runs it on the orchestrator's own context,
// detached from the caller's request lifetime. Poll with Get.
func (o *Orchestrator) Start(req GenerateRequest) (uuid.UUID, error) {
	b, err := o.admit(req)
	if err != nil {
		return uuid.Nil, err
	}
	go o.run(o.baseCtx, b, req)
	return b.ID, nil
}

func (o *Orchestrator) admit(req GenerateRequest) (*Batch, error) {
	if req.Table == nil || req.Table.TotalRows() == 0 {
		return nil, tabular.ErrEmptyTable
	}
	if !req.Table.HasColumn(req.NameColumn) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNameColumn, req.NameColumn)
	}
	b := newBatch(req.EventName, req.EventDate, req.BaseURL, req.Table.TotalRows())
	o.register(b)
	return b, nil
}

func (o *Orchestrator) run(ctx context.Context, b *Batch, req GenerateRequest) {
	b.setStatus(StatusRunning)
	o.log.Info("batch started", "batch_id", b.ID, "rows", b.Total, "workers", o.opts.Workers)

	sc := site.Context{BaseURL: req.BaseURL, EventName: req.EventName, EventDate: req.EventDate}

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for idx, row := range req.Table.Rows {
		if ctx.Err() != nil {
			b.failRow(idx, "cancelled before scheduling")
			continue
		}
		idx, row := idx, row
		g.Go(func() error {
			o.processRow(ctx, b, req.Template, sc, row[req.NameColumn], idx)
			return nil
		})
	}
	_ = g.Wait()

	b.finalize()
	snap := b.Snapshot()
	o.log.Info("batch finished",
		"batch_id", b.ID,
		"status", snap.Status,
		"succeeded", snap.Succeeded,
		"failed", snap.Failed,
	)
}

// processRow runs one row end to end: identifier, composite, pages, slot
// write. Panics and timeouts become row failures, never batch failures.
func (o *Orchestrator) processRow(ctx context.Context, b *Batch, template []byte, sc site.Context, name string, idx int) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("row panic", "batch_id", b.ID, "row", idx, "panic", r)
			b.failRow(idx, fmt.Sprintf("panic: %v", r))
		}
	}()

	if name == "" && o.opts.EmptyNames == config.EmptyNameFail {
		b.failRow(idx, "empty name cell")
		return
	}

	rctx := ctx
	if o.opts.RowTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, o.opts.RowTimeout)
		defer cancel()
	}

	certID := certs.CertificateID(b.ID, idx)

	res, err := o.renderWithDeadline(rctx, certs.RenderInput{
		Template:      template,
		RecipientName: name,
		EventName:     b.EventName,
		EventDate:     b.EventDate,
		CertificateID: certID,
		BaseURL:       b.BaseURL,
	})
	if err != nil {
		o.log.Warn("row failed", "batch_id", b.ID, "row", idx, "error", err)
		b.failRow(idx, err.Error())
		return
	}
	for _, warn := range res.Warnings {
		o.log.Warn("row warning", "batch_id", b.ID, "row", idx, "warning", warn)
	}

	rec := certs.Record{
		ID:        certID,
		RowIndex:  idx,
		Name:      name,
		EventName: b.EventName,
		EventDate: b.EventDate,
		IssuedAt:  b.CreatedAt,
		ImagePath: "certificates/" + certID + "." + o.comp.OutputExt(),
		PagePath:  "verify/" + certID + ".html",
	}

	page, err := o.pages.CertificatePage(rec, sc)
	if err != nil {
		b.failRow(idx, err.Error())
		return
	}
	meta, err := o.pages.Metadata(rec)
	if err != nil {
		b.failRow(idx, err.Error())
		return
	}

	b.completeRow(idx, &RowArtifact{Record: rec, Image: res.Image, Page: page, Meta: meta})
}

// renderWithDeadline guards against a pathological template or font pinning
// a worker forever. The render goroutine owns a buffered channel so it exits
// cleanly even after the deadline fires.
func (o *Orchestrator) renderWithDeadline(ctx context.Context, in certs.RenderInput) (certs.RenderResult, error) {
	type rendered struct {
		res certs.RenderResult
		err error
	}
	ch := make(chan rendered, 1)
	go func() {
		res, err := o.comp.Render(in)
		ch <- rendered{res: res, err: err}
	}()
	select {
	case <-ctx.Done():
		return certs.RenderResult{}, fmt.Errorf("render timed out: %w", ctx.Err())
	case r := <-ch:
		return r.res, r.err
	}
}

// Get returns the live batch for progress polling and packaging.
func (o *Orchestrator) Get(id uuid.UUID) (*Batch, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.batches[id]
	if !ok || (o.opts.BatchTTL > 0 && time.Now().After(e.expiresAt)) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.batch, nil
}

func (o *Orchestrator) register(b *Batch) {
	o.mu.Lock()
	o.batches[b.ID] = &entry{batch: b, expiresAt: b.CreatedAt.Add(o.opts.BatchTTL)}
	o.mu.Unlock()
}

func (o *Orchestrator) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			o.mu.Lock()
			for id, e := range o.batches {
				if now.After(e.expiresAt) {
					delete(o.batches, id)
				}
			}
			o.mu.Unlock()
		}
	}
}
