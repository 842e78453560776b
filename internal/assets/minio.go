package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yungbote/certgen-backend/internal/config"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

// minioStore keeps asset bytes under objects/<id> with a JSON manifest at
// meta/<id>.json. Lifetime policy is delegated to a bucket lifecycle rule.
type minioStore struct {
	log    *logger.Logger
	client *minio.Client
	bucket string
	limits Limits
}

func NewMinioStore(ctx context.Context, log *logger.Logger, cfg config.ObjectStoreConfig, limits Limits) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &minioStore{
		log:    log.With("component", "AssetStore", "backend", "minio"),
		client: client,
		bucket: cfg.Bucket,
		limits: limits,
	}, nil
}

type objectManifest struct {
	Kind        Kind      `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *minioStore) Put(ctx context.Context, kind Kind, filename string, data []byte) (Asset, error) {
	return s.PutWithID(ctx, uuid.New(), kind, filename, data)
}

func (s *minioStore) PutWithID(ctx context.Context, id uuid.UUID, kind Kind, filename string, data []byte) (Asset, error) {
	a, err := validate(kind, filename, data, s.limits)
	if err != nil {
		return Asset{}, err
	}
	a.ID = id
	a.CreatedAt = time.Now().UTC()

	_, err = s.client.PutObject(ctx, s.bucket, objectKey(id), bytes.NewReader(data), a.Size,
		minio.PutObjectOptions{ContentType: a.ContentType})
	if err != nil {
		return Asset{}, fmt.Errorf("minio put object: %w", err)
	}

	manifest, err := json.Marshal(objectManifest{
		Kind:        a.Kind,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		Width:       a.Width,
		Height:      a.Height,
		CreatedAt:   a.CreatedAt,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("marshal manifest: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, manifestKey(id), bytes.NewReader(manifest), int64(len(manifest)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return Asset{}, fmt.Errorf("minio put manifest: %w", err)
	}

	s.log.Debug("asset stored", "id", id, "kind", kind, "bytes", a.Size)
	return a, nil
}

func (s *minioStore) Get(ctx context.Context, id uuid.UUID) (Asset, []byte, error) {
	manifest, err := s.read(ctx, manifestKey(id))
	if err != nil {
		return Asset{}, nil, err
	}
	var m objectManifest
	if err := json.Unmarshal(manifest, &m); err != nil {
		return Asset{}, nil, fmt.Errorf("unmarshal manifest %s: %w", id, err)
	}
	data, err := s.read(ctx, objectKey(id))
	if err != nil {
		return Asset{}, nil, err
	}
	return Asset{
		ID:          id,
		Kind:        m.Kind,
		Filename:    m.Filename,
		ContentType: m.ContentType,
		Size:        m.Size,
		Width:       m.Width,
		Height:      m.Height,
		CreatedAt:   m.CreatedAt,
	}, data, nil
}

func (s *minioStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object: %w", err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, manifestKey(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove manifest: %w", err)
	}
	return nil
}

func (s *minioStore) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("minio read %s: %w", key, err)
	}
	return data, nil
}

func objectKey(id uuid.UUID) string   { return "objects/" + id.String() }
func manifestKey(id uuid.UUID) string { return "meta/" + id.String() + ".json" }
