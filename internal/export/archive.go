package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// ArchiveConfig describes the S3-compatible bucket exports are uploaded to.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	LinkTTL   time.Duration
}

// Link is a time-limited download URL for an archived export.
type Link struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// Archive stores rendered exports and hands out presigned download links.
type Archive struct {
	client objectStore
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewArchive connects to the object store and ensures the bucket exists.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	archive := newArchive(client, cfg.Bucket, cfg.LinkTTL)
	if err := archive.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

func newArchive(client objectStore, bucket string, ttl time.Duration) *Archive {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Archive{client: client, bucket: bucket, ttl: ttl, now: time.Now}
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ObjectKey returns exports/<userID>/<filename>.
func ObjectKey(userID, filename string) string {
	return "exports/" + userID + "/" + filename
}

func userPrefix(userID string) string {
	return "exports/" + userID + "/"
}

// Publish uploads result for userID and returns a presigned GET link.
func (a *Archive) Publish(ctx context.Context, userID string, result *Result) (Link, error) {
	if a == nil {
		return Link{}, ErrArchiveDisabled
	}
	key := ObjectKey(userID, result.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType:        result.MimeType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", result.Filename),
	})
	if err != nil {
		return Link{}, fmt.Errorf("upload export: %w", err)
	}

	issued := a.now()
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.ttl, nil)
	if err != nil {
		return Link{}, fmt.Errorf("presign export: %w", err)
	}
	return Link{URL: u.String(), Key: key, ExpiresAt: issued.Add(a.ttl).UTC()}, nil
}

// DeleteUserExports removes every archived export of userID and returns how
// many objects were removed.
func (a *Archive) DeleteUserExports(ctx context.Context, userID string) (int, error) {
	if a == nil {
		return 0, nil
	}
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	removed := 0
	for object := range a.client.ListObjects(listCtx, a.bucket, minio.ListObjectsOptions{
		Prefix:    userPrefix(userID),
		Recursive: true,
	}) {
		if object.Err != nil {
			return removed, fmt.Errorf("list exports: %w", object.Err)
		}
		if err := a.client.RemoveObject(ctx, a.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, fmt.Errorf("remove export %s: %w", object.Key, err)
		}
		removed++
	}
	if removed > 0 {
		log.Printf("export: removed %d archived export(s) for user %s", removed, userID)
	}
	return removed, nil
}
