package config

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

const layoutEnv = "CERTGEN_LAYOUT_YAML"

//go:embed layout.yaml
var layoutFS embed.FS

// Layout positions the compositor's text and QR anchors. Anchors are
// template-agnostic: fractions of the template's dimensions, never pixels
// tied to one design.
type Layout struct {
	Text TextLayout `yaml:"text"`
	QR   QRLayout   `yaml:"qr"`
}

type TextLayout struct {
	NameY          float64 `yaml:"name_y"`
	EventY         float64 `yaml:"event_y"`
	DateY          float64 `yaml:"date_y"`
	NameFontSize   float64 `yaml:"name_font_size"`
	DetailFontSize float64 `yaml:"detail_font_size"`
	MinFontSize    float64 `yaml:"min_font_size"`
	MaxWidthFrac   float64 `yaml:"max_width_frac"`
	Color          string  `yaml:"color"`
}

type QRLayout struct {
	Size   int `yaml:"size"`
	Margin int `yaml:"margin"`
}

type yamlLayoutFile struct {
	Layout  string     `yaml:"layout"`
	Version int        `yaml:"version"`
	Text    TextLayout `yaml:"text"`
	QR      QRLayout   `yaml:"qr"`
}

var layoutOnce sync.Once
var layoutCache Layout
var layoutErr error

// CurrentLayout loads the layout once: CERTGEN_LAYOUT_YAML if set, otherwise
// the embedded default. An invalid override falls back to the default.
func CurrentLayout(log *logger.Logger) Layout {
	layoutOnce.Do(func() {
		layoutCache, layoutErr = loadLayout()
	})
	if layoutErr != nil {
		if log != nil {
			log.Warn("layout: override load failed; using embedded default", "error", layoutErr)
		}
		def, _ := parseLayout(mustEmbeddedLayout())
		return def
	}
	return layoutCache
}

func loadLayout() (Layout, error) {
	if path := strings.TrimSpace(os.Getenv(layoutEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Layout{}, fmt.Errorf("read %s: %w", path, err)
		}
		return parseLayout(raw)
	}
	return parseLayout(mustEmbeddedLayout())
}

func mustEmbeddedLayout() []byte {
	raw, err := layoutFS.ReadFile("layout.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded layout.yaml missing: %v", err))
	}
	return raw
}

func parseLayout(raw []byte) (Layout, error) {
	var f yamlLayoutFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Layout{}, fmt.Errorf("parse layout yaml: %w", err)
	}
	l := Layout{Text: f.Text, QR: f.QR}
	if err := l.validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

func (l Layout) validate() error {
	for name, v := range map[string]float64{
		"text.name_y":  l.Text.NameY,
		"text.event_y": l.Text.EventY,
		"text.date_y":  l.Text.DateY,
	} {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("layout %s must be in (0,1), got %v", name, v)
		}
	}
	if l.Text.MaxWidthFrac <= 0 || l.Text.MaxWidthFrac > 1 {
		return fmt.Errorf("layout text.max_width_frac must be in (0,1], got %v", l.Text.MaxWidthFrac)
	}
	if l.Text.NameFontSize <= 0 || l.Text.DetailFontSize <= 0 {
		return fmt.Errorf("layout font sizes must be positive")
	}
	if l.Text.MinFontSize <= 0 || l.Text.MinFontSize > l.Text.NameFontSize {
		return fmt.Errorf("layout text.min_font_size must be in (0, name_font_size]")
	}
	if l.QR.Size <= 0 || l.QR.Margin < 0 {
		return fmt.Errorf("layout qr.size must be positive and qr.margin non-negative")
	}
	return nil
}
