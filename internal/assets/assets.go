package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTemplate Kind = "template"
	KindTable    Kind = "table"
	KindArchive  Kind = "archive"
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrInvalidAsset = errors.New("invalid asset")
)

// Asset describes one stored blob. Template assets carry their decoded
// dimensions; the bytes themselves live behind Store.Get.
type Asset struct {
	ID          uuid.UUID
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Width       int
	Height      int
	CreatedAt   time.Time
}

// Store holds uploaded templates and tables for the lifetime of a batch, and
// packaged archives until download. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, kind Kind, filename string, data []byte) (Asset, error)
	// PutWithID stores under a caller-chosen id. Used to key archives by batch id.
	PutWithID(ctx context.Context, id uuid.UUID, kind Kind, filename string, data []byte) (Asset, error)
	Get(ctx context.Context, id uuid.UUID) (Asset, []byte, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Limits bound upload sizes per kind.
type Limits struct {
	MaxTemplateBytes int64
	MaxTableBytes    int64
}

// TableFormat is the sniffed format of an uploaded recipient table.
type TableFormat string

const (
	TableCSV  TableFormat = "csv"
	TableXLSX TableFormat = "xlsx"
	TableXLS  TableFormat = "xls"
)

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}
var biffMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}

// SniffTableFormat prefers content magic over the filename extension: an
// ".xls" that is really an OpenXML zip is routed to the xlsx reader.
func SniffTableFormat(filename string, data []byte) (TableFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return TableXLSX, nil
	case bytes.HasPrefix(data, biffMagic):
		return TableXLS, nil
	}
	switch ext {
	case ".csv", ".txt":
		return TableCSV, nil
	case ".xlsx", ".xls":
		return "", fmt.Errorf("%w: %s file does not contain spreadsheet data", ErrInvalidAsset, ext)
	}
	return "", fmt.Errorf("%w: unsupported table format %q", ErrInvalidAsset, ext)
}

func validate(kind Kind, filename string, data []byte, limits Limits) (Asset, error) {
	a := Asset{Kind: kind, Filename: filename, Size: int64(len(data))}
	if len(data) == 0 {
		return a, fmt.Errorf("%w: empty upload", ErrInvalidAsset)
	}
	switch kind {
	case KindTemplate:
		if limits.MaxTemplateBytes > 0 && a.Size > limits.MaxTemplateBytes {
			return a, fmt.Errorf("%w: template exceeds %d bytes", ErrInvalidAsset, limits.MaxTemplateBytes)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return a, fmt.Errorf("%w: template is not a decodable image: %v", ErrInvalidAsset, err)
		}
		if format != "png" && format != "jpeg" {
			return a, fmt.Errorf("%w: template must be PNG or JPEG, got %s", ErrInvalidAsset, format)
		}
		a.Width = cfg.Width
		a.Height = cfg.Height
		a.ContentType = "image/" + format
	case KindTable:
		if limits.MaxTableBytes > 0 && a.Size > limits.MaxTableBytes {
			return a, fmt.Errorf("%w: table exceeds %d bytes", ErrInvalidAsset, limits.MaxTableBytes)
		}
		format, err := SniffTableFormat(filename, data)
		if err != nil {
			return a, err
		}
		switch format {
		case TableCSV:
			a.ContentType = "text/csv"
		case TableXLSX:
			a.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case TableXLS:
			a.ContentType = "application/vnd.ms-excel"
		}
	case KindArchive:
		a.ContentType = "application/zip"
	default:
		return a, fmt.Errorf("%w: unknown kind %q", ErrInvalidAsset, kind)
	}
	return a, nil
}
