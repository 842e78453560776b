package certs

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/certgen-backend/internal/config"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

var ErrRenderFailure = errors.New("render failure")

const fontStep = 2.0

// RenderInput is one certificate to draw. Template bytes are shared read-only
// across all rows of a batch.
type RenderInput struct {
	Template      []byte
	RecipientName string
	EventName     string
	EventDate     string
	CertificateID string
	BaseURL       string
}

type RenderResult struct {
	Image    []byte
	Warnings []string
}

// Compositor draws recipient name, event name and date onto a template and
// pastes a QR code encoding the certificate's verification URL. Safe for
// concurrent use.
type Compositor struct {
	log    *logger.Logger
	layout config.Layout
	format string

	font *truetype.Font
}

// NewCompositor loads the TTF at fontPath, or the embedded Go Regular face
// when fontPath is empty.
func NewCompositor(log *logger.Logger, layout config.Layout, outputFormat, fontPath string) (*Compositor, error) {
	raw := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("read font file: %w", err)
		}
		raw = b
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return &Compositor{
		log:    log.With("component", "Compositor"),
		layout: layout,
		format: outputFormat,
		font:   parsed,
	}, nil
}

func (c *Compositor) Render(in RenderInput) (RenderResult, error) {
	var res RenderResult

	img, _, err := image.Decode(bytes.NewReader(in.Template))
	if err != nil {
		return res, fmt.Errorf("%w: decode template: %v", ErrRenderFailure, err)
	}

	dc := gg.NewContextForImage(img)
	w := float64(dc.Width())
	h := float64(dc.Height())

	qrSize, qrMargin := c.qrPlacement(dc.Width(), dc.Height())

	// Keep the text box clear of the QR corner. qrPlacement guarantees this
	// clearance stays positive even on narrow templates.
	maxWidth := w * c.layout.Text.MaxWidthFrac
	if clear := w - 2*float64(qrSize+qrMargin); clear < maxWidth {
		maxWidth = clear
	}

	dc.SetHexColor(c.layout.Text.Color)

	lines := []struct {
		text string
		size float64
		y    float64
	}{
		{in.RecipientName, c.layout.Text.NameFontSize, c.layout.Text.NameY},
		{in.EventName, c.layout.Text.DetailFontSize, c.layout.Text.EventY},
		{in.EventDate, c.layout.Text.DetailFontSize, c.layout.Text.DateY},
	}
	for _, line := range lines {
		if line.text == "" {
			continue
		}
		fitted, size, truncated := c.FitText(line.text, line.size, maxWidth)
		if truncated {
			res.Warnings = append(res.Warnings, fmt.Sprintf("text %q truncated to %q to fit %.0fpx box", line.text, fitted, maxWidth))
		}
		dc.SetFontFace(c.face(size))
		dc.DrawStringAnchored(fitted, w/2, h*line.y, 0.5, 0.5)
	}

	if err := c.pasteQR(dc, VerificationURL(in.BaseURL, in.CertificateID), qrSize, qrMargin); err != nil {
		return res, err
	}

	var buf bytes.Buffer
	switch c.format {
	case "jpeg":
		err = jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 92})
	default:
		err = dc.EncodePNG(&buf)
	}
	if err != nil {
		return res, fmt.Errorf("%w: encode output: %v", ErrRenderFailure, err)
	}
	res.Image = buf.Bytes()
	return res, nil
}

// OutputExt is the file extension of rendered images, without the dot.
func (c *Compositor) OutputExt() string {
	if c.format == "jpeg" {
		return "jpg"
	}
	return "png"
}

// FitText shrinks the font stepwise from startSize until the rendered width
// fits maxWidth, flooring at the configured minimum size. If the floor still
// overflows, the text is truncated with an ellipsis. Deterministic.
func (c *Compositor) FitText(text string, startSize, maxWidth float64) (fitted string, size float64, truncated bool) {
	scratch := gg.NewContext(1, 1)
	for size = startSize; size >= c.layout.Text.MinFontSize; size -= fontStep {
		scratch.SetFontFace(c.face(size))
		if tw, _ := scratch.MeasureString(text); tw <= maxWidth {
			return text, size, false
		}
	}
	size = c.layout.Text.MinFontSize
	scratch.SetFontFace(c.face(size))
	runes := []rune(text)
	for len(runes) > 0 {
		candidate := string(runes) + "…"
		if tw, _ := scratch.MeasureString(candidate); tw <= maxWidth {
			return candidate, size, true
		}
		runes = runes[:len(runes)-1]
	}
	return "…", size, true
}

// MeasureString reports the rendered width of text at the given size.
// Exposed for overflow checks in tests.
func (c *Compositor) MeasureString(text string, size float64) float64 {
	scratch := gg.NewContext(1, 1)
	scratch.SetFontFace(c.face(size))
	tw, _ := scratch.MeasureString(text)
	return tw
}

// qrPlacement shrinks the configured QR code on templates too small to hold
// it beside a usable text box. Capping the size at a quarter and the margin
// at a sixteenth of the short side keeps the centered text box's horizontal
// clearance at 3/8 of the width or better.
func (c *Compositor) qrPlacement(w, h int) (size, margin int) {
	size, margin = c.layout.QR.Size, c.layout.QR.Margin
	short := min(w, h)
	if limit := short / 4; size > limit {
		size = limit
	}
	if limit := short / 16; margin > limit {
		margin = limit
	}
	return size, margin
}

func (c *Compositor) pasteQR(dc *gg.Context, url string, size, margin int) error {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("%w: qr encode: %v", ErrRenderFailure, err)
	}
	src := qr.Image(size)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	x := dc.Width() - size - margin
	y := dc.Height() - size - margin
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	dc.DrawImage(dst, x, y)
	return nil
}

// face builds a fresh Face per call: truetype faces carry a glyph cache that
// is not safe to share across rendering goroutines.
func (c *Compositor) face(size float64) font.Face {
	return truetype.NewFace(c.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
