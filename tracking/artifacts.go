package tracking

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// ArtifactStore holds artifact bytes. Keys are slash-separated and relative
// to the store root.
type ArtifactStore interface {
	// Put stores the contents of r under key and returns the resulting URI.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	// Open returns a reader for the artifact stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Close() error
}

const gcsScheme = "gs://"

// OpenArtifactStore picks a backend from root: "gs://bucket/prefix" stores
// in Google Cloud Storage, anything else is a local directory. The
// credentials file is only used for GCS and may be empty to fall back to
// application default credentials.
func OpenArtifactStore(ctx context.Context, root, credentialsFile string) (ArtifactStore, error) {
	if strings.HasPrefix(root, gcsScheme) {
		return NewGCSArtifactStore(ctx, root, credentialsFile)
	}
	return NewLocalArtifactStore(strings.TrimPrefix(root, "file://"))
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + filepath.ToSlash(key))[1:]
	if k == "" || k == "." {
		return "", errors.NewValidationError("artifact", "key must not be empty", key)
	}
	return k, nil
}

// LocalArtifactStore keeps artifacts under a directory on disk.
type LocalArtifactStore struct {
	root string
}

// NewLocalArtifactStore creates root if it does not exist.
func NewLocalArtifactStore(root string) (*LocalArtifactStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve artifact root %s", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create artifact root %s", abs)
	}
	return &LocalArtifactStore{root: abs}, nil
}

// Root returns the absolute directory artifacts are written under.
func (s *LocalArtifactStore) Root() string {
	return s.root
}

func (s *LocalArtifactStore) Put(_ context.Context, key string, r io.Reader) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrapf(err, "create directory for %s", k)
	}

	// 途中で失敗しても壊れたファイルを残さないよう一時ファイル経由で置き換える
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return "", errors.Wrapf(err, "create temp file for %s", k)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "write artifact %s", k)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", k)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", k)
	}
	return "file://" + filepath.ToSlash(dst), nil
}

func (s *LocalArtifactStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(k)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "artifact %q", k)
		}
		return nil, errors.Wrapf(err, "open artifact %s", k)
	}
	return f, nil
}

func (s *LocalArtifactStore) Close() error { return nil }

// GCSArtifactStore keeps artifacts in a Google Cloud Storage bucket.
type GCSArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArtifactStore parses a "gs://bucket/prefix" root and creates a client.
func NewGCSArtifactStore(ctx context.Context, root, credentialsFile string) (*GCSArtifactStore, error) {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(root, gcsScheme), "/")
	if bucket == "" {
		return nil, errors.NewValidationError("artifact_root", "missing bucket name", root)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, errors.Wrapf(err, "service account key not found at %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS storage client")
	}
	return &GCSArtifactStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *GCSArtifactStore) object(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return k, nil
	}
	return s.prefix + "/" + k, nil
}

func (s *GCSArtifactStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	name, err := s.object(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", errors.Wrapf(err, "copy artifact to gs://%s/%s", s.bucket, name)
	}
	// Close でアップロードが確定する
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "close GCS writer for gs://%s/%s", s.bucket, name)
	}
	return gcsScheme + s.bucket + "/" + name, nil
}

func (s *GCSArtifactStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := s.object(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "artifact gs://%s/%s", s.bucket, name)
		}
		return nil, errors.Wrapf(err, "open gs://%s/%s", s.bucket, name)
	}
	return rc, nil
}

func (s *GCSArtifactStore) Close() error {
	return s.client.Close()
}
