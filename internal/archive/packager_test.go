package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/batch"
	"github.com/yungbote/certgen-backend/internal/certs"
	"github.com/yungbote/certgen-backend/internal/config"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/site"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

func testTemplate(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode template: %v", err)
	}
	return buf.Bytes()
}

func runBatch(t *testing.T, names string) *batch.Batch {
	t.Helper()
	layout := config.Layout{
		Text: config.TextLayout{
			NameY: 0.40, EventY: 0.50, DateY: 0.60,
			NameFontSize: 60, DetailFontSize: 40, MinFontSize: 18,
			MaxWidthFrac: 0.80, Color: "#1F2937",
		},
		QR: config.QRLayout{Size: 150, Margin: 50},
	}
	comp, err := certs.NewCompositor(logger.NewNop(), layout, "png", "")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o := batch.NewOrchestrator(ctx, logger.NewNop(), comp, site.NewGenerator(), batch.Options{Workers: 4, BatchTTL: time.Hour})

	table, err := tabular.Parse([]byte(names), tabular.FormatCSV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := o.Generate(context.Background(), batch.GenerateRequest{
		Template:   testTemplate(t),
		Table:      table,
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://acme.github.io/certs",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return b
}

func newPackager(t *testing.T) *Packager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := assets.NewMemoryStore(ctx, logger.NewNop(), assets.Limits{}, time.Hour)
	return NewPackager(logger.NewNop(), store, site.NewGenerator())
}

func TestPackageLayout(t *testing.T) {
	b := runBatch(t, "Name,Email\nAlice,a@x.io\nBob,b@x.io\nCharlie,c@x.io\n")
	p := newPackager(t)

	data, err := p.Package(context.Background(), b)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["docs/index.html"] || !names["docs/verify.html"] {
		t.Fatalf("missing site pages: %v", names)
	}
	snap := b.Snapshot()
	if len(snap.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap.Records))
	}
	for _, rec := range snap.Records {
		for _, want := range []string{
			"docs/certificates/" + rec.ID + ".png",
			"docs/verify/" + rec.ID + ".html",
			"docs/verify/" + rec.ID + ".json",
		} {
			if !names[want] {
				t.Errorf("archive missing %s", want)
			}
		}
	}
	// 2 site pages + 3 entries per certificate
	if got := len(zr.File); got != 2+3*3 {
		t.Errorf("entry count = %d, want 11", got)
	}
}

func TestPackageIdempotent(t *testing.T) {
	b := runBatch(t, "Name\nAlice\nBob\n")
	p := newPackager(t)

	first, err := p.Package(context.Background(), b)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	second, err := p.Package(context.Background(), b)
	if err != nil {
		t.Fatalf("Package again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("repackaging an unchanged batch is not byte-identical")
	}
}

func TestPackageEmptyBatch(t *testing.T) {
	// Undecodable template fails every row, so nothing can be packaged.
	layout := config.Layout{
		Text: config.TextLayout{
			NameY: 0.40, EventY: 0.50, DateY: 0.60,
			NameFontSize: 60, DetailFontSize: 40, MinFontSize: 18,
			MaxWidthFrac: 0.80, Color: "#1F2937",
		},
		QR: config.QRLayout{Size: 150, Margin: 50},
	}
	comp, err := certs.NewCompositor(logger.NewNop(), layout, "png", "")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o := batch.NewOrchestrator(ctx, logger.NewNop(), comp, site.NewGenerator(), batch.Options{Workers: 2, BatchTTL: time.Hour})
	table, err := tabular.Parse([]byte("Name\nAlice\n"), tabular.FormatCSV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := o.Generate(context.Background(), batch.GenerateRequest{
		Template:   []byte("junk"),
		Table:      table,
		NameColumn: "Name",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	p := newPackager(t)
	if _, err := p.Package(context.Background(), b); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestFetchRoundTripAndUnknown(t *testing.T) {
	b := runBatch(t, "Name\nAlice\n")
	p := newPackager(t)

	data, err := p.Package(context.Background(), b)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	fetched, err := p.Fetch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, fetched) {
		t.Fatalf("fetched archive differs from packaged bytes")
	}

	if _, err := p.Fetch(context.Background(), uuid.New()); !errors.Is(err, assets.ErrNotFound) {
		t.Fatalf("err = %v, want assets.ErrNotFound", err)
	}
}
