package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/certs"
	"github.com/yungbote/certgen-backend/internal/config"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/site"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

func testTemplate(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 800; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode template: %v", err)
	}
	return buf.Bytes()
}

func testOrchestrator(t *testing.T, opts Options) *Orchestrator {
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
	return NewOrchestrator(ctx, logger.NewNop(), comp, site.NewGenerator(), opts)
}

func tableOf(t *testing.T, names ...string) *tabular.RecipientTable {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("Name,Email\n")
	for i, n := range names {
		fmt.Fprintf(&sb, "%s,user%d@example.com\n", n, i)
	}
	table, err := tabular.Parse([]byte(sb.String()), tabular.FormatCSV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return table
}

func TestGenerateHappyPath(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 4, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "Bob", "Charlie"),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://acme.github.io/certs",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusComplete {
		t.Fatalf("status = %s, want complete (failures: %v)", snap.Status, snap.Failures)
	}
	if len(snap.Records) != 3 || snap.Succeeded != 3 || snap.Failed != 0 {
		t.Fatalf("records = %d succeeded = %d failed = %d", len(snap.Records), snap.Succeeded, snap.Failed)
	}
	seen := map[string]bool{}
	for i, rec := range snap.Records {
		if rec.RowIndex != i {
			t.Fatalf("records out of row order: %v", snap.Records)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate certificate id %s", rec.ID)
		}
		seen[rec.ID] = true
	}
	if snap.Records[0].Name != "Alice" || snap.Records[2].Name != "Charlie" {
		t.Fatalf("names out of order: %v", snap.Records)
	}
}

func TestGenerateRecordsStayInRowOrderUnderParallelism(t *testing.T) {
	names := make([]string, 40)
	for i := range names {
		names[i] = fmt.Sprintf("Recipient %02d", i)
	}
	o := testOrchestrator(t, Options{Workers: 8, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, names...),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://acme.github.io/certs",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusComplete || len(snap.Records) != 40 {
		t.Fatalf("status=%s records=%d", snap.Status, len(snap.Records))
	}
	for i, rec := range snap.Records {
		if rec.RowIndex != i || rec.Name != names[i] {
			t.Fatalf("row %d out of order: got %q at index %d", i, rec.Name, rec.RowIndex)
		}
	}
}

func TestGenerateInvalidNameColumn(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	_, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice"),
		NameColumn: "FullName",
	})
	if !errors.Is(err, ErrInvalidNameColumn) {
		t.Fatalf("err = %v, want ErrInvalidNameColumn", err)
	}
}

func TestGenerateBadTemplateFailsAllRows(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   []byte("junk"),
		Table:      tableOf(t, "Alice", "Bob"),
		NameColumn: "Name",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusFailed || snap.Failed != 2 || snap.Succeeded != 0 {
		t.Fatalf("status=%s failed=%d succeeded=%d", snap.Status, snap.Failed, snap.Succeeded)
	}
	for _, f := range snap.Failures {
		if f.Reason == "" {
			t.Fatalf("failure missing reason: %+v", f)
		}
	}
}

func TestGenerateEmptyNamePolicyRender(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, EmptyNames: config.EmptyNameRender, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "", "Charlie"),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusComplete || snap.Succeeded != 3 {
		t.Fatalf("render policy: status=%s succeeded=%d", snap.Status, snap.Succeeded)
	}
}

func TestGenerateEmptyNamePolicyFail(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, EmptyNames: config.EmptyNameFail, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "", "Charlie"),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusPartialFailure || snap.Succeeded != 2 || snap.Failed != 1 {
		t.Fatalf("fail policy: status=%s succeeded=%d failed=%d", snap.Status, snap.Succeeded, snap.Failed)
	}
	if snap.Failures[0].RowIndex != 1 {
		t.Fatalf("wrong failed row: %+v", snap.Failures)
	}
	// Sibling rows intact and still row-ordered.
	if snap.Records[0].Name != "Alice" || snap.Records[1].Name != "Charlie" {
		t.Fatalf("sibling rows disturbed: %v", snap.Records)
	}
}

func TestGenerateCancelledContextStopsScheduling(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := o.Generate(ctx, GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "Bob", "Charlie"),
		NameColumn: "Name",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusFailed || snap.Failed != 3 {
		t.Fatalf("cancelled batch: status=%s failed=%d", snap.Status, snap.Failed)
	}
}

func TestGenerateRowTimeoutIsRowFailureNotBatchFailure(t *testing.T) {
	// A timeout far below any realistic render time forces every row down
	// the deadline path while siblings still individually finish.
	o := testOrchestrator(t, Options{Workers: 2, RowTimeout: time.Nanosecond, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "Bob"),
		NameColumn: "Name",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	for _, f := range snap.Failures {
		if !strings.Contains(f.Reason, "timed out") {
			t.Fatalf("failure reason = %q, want timeout", f.Reason)
		}
	}
}

func TestGetUnknownBatch(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	if _, err := o.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotProgressCountsDuringRun(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 1, BatchTTL: time.Hour})
	b, err := o.Generate(context.Background(), GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "Bob"),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := b.Snapshot()
	if snap.Done != snap.Total {
		t.Fatalf("done = %d, total = %d", snap.Done, snap.Total)
	}
	got, err := o.Get(b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Snapshot().BatchID != b.ID {
		t.Fatalf("registry returned wrong batch")
	}
}

func TestStartRunsDetachedAndIsPollable(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	id, err := o.Start(GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice", "Bob", "Charlie"),
		NameColumn: "Name",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The batch is registered before Start returns; poll until terminal.
	deadline := time.After(30 * time.Second)
	for {
		b, err := o.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		snap := b.Snapshot()
		if snap.Status.Terminal() {
			if snap.Status != StatusComplete || snap.Succeeded != 3 {
				t.Fatalf("status = %s, succeeded = %d", snap.Status, snap.Succeeded)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("batch never reached a terminal state")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartRejectsBadRequest(t *testing.T) {
	o := testOrchestrator(t, Options{Workers: 2, BatchTTL: time.Hour})
	if _, err := o.Start(GenerateRequest{
		Template:   testTemplate(t),
		Table:      tableOf(t, "Alice"),
		NameColumn: "Nope",
		EventName:  "Hackathon",
		EventDate:  "May 1, 2025",
		BaseURL:    "https://example.com",
	}); !errors.Is(err, ErrInvalidNameColumn) {
		t.Fatalf("err = %v, want ErrInvalidNameColumn", err)
	}
}
