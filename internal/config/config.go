package config

import (
	"time"

	"github.com/yungbote/certgen-backend/internal/pkg/envutil"
)

// EmptyNamePolicy controls what happens to a row whose name cell is blank.
type EmptyNamePolicy string

const (
	// EmptyNameRender draws the certificate with an empty name field.
	EmptyNameRender EmptyNamePolicy = "render"
	// EmptyNameFail records the row as failed.
	EmptyNameFail EmptyNamePolicy = "fail"
)

type Config struct {
	Addr    string
	LogMode string

	MaxTemplateBytes int64
	MaxTableBytes    int64
	AssetTTL         time.Duration

	Workers      int
	RowTimeout   time.Duration
	EmptyNames   EmptyNamePolicy
	OutputFormat string // "png" or "jpeg"
	FontPath     string // optional TTF override; embedded Go Regular otherwise
	BatchTTL     time.Duration
	PreviewRows  int
	ObjectStore  ObjectStoreConfig
}

type ObjectStoreConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func FromEnv() Config {
	policy := EmptyNamePolicy(envutil.String("CERTGEN_EMPTY_NAME_POLICY", string(EmptyNameRender)))
	if policy != EmptyNameRender && policy != EmptyNameFail {
		policy = EmptyNameRender
	}
	format := envutil.String("CERTGEN_OUTPUT_FORMAT", "png")
	if format != "png" && format != "jpeg" {
		format = "png"
	}
	return Config{
		Addr:             envutil.String("CERTGEN_ADDR", ":8080"),
		LogMode:          envutil.String("LOG_MODE", "development"),
		MaxTemplateBytes: envutil.Int64("CERTGEN_MAX_TEMPLATE_BYTES", 5<<20),
		MaxTableBytes:    envutil.Int64("CERTGEN_MAX_TABLE_BYTES", 10<<20),
		AssetTTL:         envutil.Duration("CERTGEN_ASSET_TTL", 1*time.Hour),
		Workers:          envutil.Int("CERTGEN_WORKERS", 4),
		RowTimeout:       envutil.Duration("CERTGEN_ROW_TIMEOUT", 30*time.Second),
		EmptyNames:       policy,
		OutputFormat:     format,
		FontPath:         envutil.String("CERTGEN_FONT", ""),
		BatchTTL:         envutil.Duration("CERTGEN_BATCH_TTL", 2*time.Hour),
		PreviewRows:      envutil.Int("CERTGEN_PREVIEW_ROWS", 5),
		ObjectStore: ObjectStoreConfig{
			Enabled:   envutil.Bool("CERTGEN_MINIO_ENABLED", false),
			Endpoint:  envutil.String("CERTGEN_MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: envutil.String("CERTGEN_MINIO_ACCESS_KEY", ""),
			SecretKey: envutil.String("CERTGEN_MINIO_SECRET_KEY", ""),
			Region:    envutil.String("CERTGEN_MINIO_REGION", "us-east-1"),
			UseSSL:    envutil.Bool("CERTGEN_MINIO_USE_SSL", false),
			Bucket:    envutil.String("CERTGEN_MINIO_BUCKET", "certgen"),
		},
	}
}
