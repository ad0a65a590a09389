package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/opst/ripen/pkg/domain/model/artifact"
)

const scheme = "s3"

// objects is the subset of an object storage used by the store.
type objects interface {
	put(ctx context.Context, key string, content []byte, contentType string) error

	// get reads at most limit bytes of the object.
	//
	// If the object is larger than that, content is truncated and the second value is false.
	get(ctx context.Context, key string, limit int64) ([]byte, bool, error)
}

type Config struct {
	Endpoint        string
	AccessKeyId     string
	SecretAccessKey string
	Bucket          string

	// key prefix of artifacts. Empty means the bucket root.
	Prefix string

	Secure bool
}

type s3Store struct {
	bucket  string
	prefix  string
	objects objects
}

var _ artifact.Interface = &s3Store{}

// New artifact store on a S3 compatible object storage.
//
// Each artifact is a pair of objects under "PREFIX/VERSION_ID/".
func New(conf Config) (artifact.Interface, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyId, conf.SecretAccessKey, ""),
		Secure: conf.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return newStore(conf.Bucket, conf.Prefix, &minioObjects{client: client, bucket: conf.Bucket}), nil
}

func newStore(bucket string, prefix string, objects objects) *s3Store {
	return &s3Store{
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		objects: objects,
	}
}

func (s *s3Store) key(versionId string, name string) string {
	return path.Join(s.prefix, versionId, name)
}

func (s *s3Store) ref(versionId string) string {
	u := url.URL{Scheme: scheme, Host: s.bucket, Path: "/" + path.Join(s.prefix, versionId)}
	return u.String()
}

func (s *s3Store) versionId(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != scheme || u.Host != s.bucket {
		return "", fmt.Errorf("%w: unknown reference %q", artifact.ErrNotFound, ref)
	}
	dir, versionId := path.Split(strings.TrimPrefix(u.Path, "/"))
	if strings.Trim(dir, "/") != s.prefix {
		return "", fmt.Errorf("%w: %q is out of the store", artifact.ErrNotFound, ref)
	}
	if err := artifact.CheckVersionId(versionId); err != nil {
		return "", fmt.Errorf("%w: %w", artifact.ErrNotFound, err)
	}
	return versionId, nil
}

// Save puts the blob, then the metadata.
//
// Metadata is the commit marker: artifacts without metadata are not loaded.
func (s *s3Store) Save(ctx context.Context, versionId string, blob []byte, meta artifact.Metadata) (string, error) {
	meta, err := artifact.Seal(versionId, blob, meta)
	if err != nil {
		return "", err
	}
	metaJson, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}

	if err := s.objects.put(ctx, s.key(versionId, artifact.BlobName), blob, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("s3 put model: %w", err)
	}
	if err := s.objects.put(ctx, s.key(versionId, artifact.MetadataName), metaJson, "application/json"); err != nil {
		return "", fmt.Errorf("s3 put metadata: %w", err)
	}
	return s.ref(versionId), nil
}

func (s *s3Store) Load(ctx context.Context, ref string) ([]byte, artifact.Metadata, error) {
	var meta artifact.Metadata
	versionId, err := s.versionId(ref)
	if err != nil {
		return nil, meta, err
	}

	metaJson, _, err := s.objects.get(ctx, s.key(versionId, artifact.MetadataName), artifact.MaxBlobSize)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, meta, fmt.Errorf("%w: %s", err, ref)
	} else if err != nil {
		return nil, meta, fmt.Errorf("s3 get metadata: %w", err)
	}
	if err := json.Unmarshal(metaJson, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: metadata: %w", artifact.ErrCorrupted, err)
	}

	blob, complete, err := s.objects.get(ctx, s.key(versionId, artifact.BlobName), artifact.MaxBlobSize)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, meta, fmt.Errorf("%w: %s has no model", artifact.ErrCorrupted, ref)
	} else if err != nil {
		return nil, meta, fmt.Errorf("s3 get model: %w", err)
	}
	if !complete {
		return nil, meta, fmt.Errorf("%w: %s", artifact.ErrTooLarge, ref)
	}
	if err := artifact.Verify(blob, meta); err != nil {
		return nil, meta, err
	}
	return blob, meta, nil
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (m *minioObjects) put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := m.client.PutObject(
		ctx, m.bucket, key,
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	return err
}

func (m *minioObjects) get(ctx context.Context, key string, limit int64) ([]byte, bool, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, asNotFound(err)
	}
	defer obj.Close()

	content, err := io.ReadAll(io.LimitReader(obj, limit+1))
	if err != nil {
		return nil, false, asNotFound(err)
	}
	if limit < int64(len(content)) {
		return content[:limit], false, nil
	}
	return content, true, nil
}

func asNotFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %w", artifact.ErrNotFound, err)
	}
	return err
}
