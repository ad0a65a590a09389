package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/opst/ripen/pkg/domain/model/artifact"
	xe "github.com/opst/ripen/pkg/errors"
)

const scheme = "file"

type fsStore struct {
	root string
}

var _ artifact.Interface = &fsStore{}

// New artifact store on the local filesystem.
//
// Each artifact is a directory named after its version id under root.
func New(root string) (artifact.Interface, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, os.FileMode(0o755)); err != nil {
		return nil, err
	}
	return &fsStore{root: abs}, nil
}

func (s *fsStore) ref(versionId string) string {
	u := url.URL{Scheme: scheme, Path: filepath.ToSlash(filepath.Join(s.root, versionId))}
	return u.String()
}

func (s *fsStore) dir(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != scheme {
		return "", fmt.Errorf("%w: unknown reference %q", artifact.ErrNotFound, ref)
	}
	dir := filepath.FromSlash(u.Path)
	if filepath.Dir(dir) != s.root {
		return "", fmt.Errorf("%w: %q is out of the store", artifact.ErrNotFound, ref)
	}
	return dir, nil
}

// Save writes the blob and the metadata into a temporary directory,
// then renames it to the directory of the version.
func (s *fsStore) Save(ctx context.Context, versionId string, blob []byte, meta artifact.Metadata) (string, error) {
	meta, err := artifact.Seal(versionId, blob, meta)
	if err != nil {
		return "", err
	}
	metaJson, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", xe.Wrap(err)
	}

	tmp, err := os.MkdirTemp(s.root, ".tmp-"+versionId+"-")
	if err != nil {
		return "", xe.Wrap(err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	if err := writeFile(filepath.Join(tmp, artifact.BlobName), blob); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(tmp, artifact.MetadataName), metaJson); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, versionId)
	if err := os.Rename(tmp, dest); err != nil {
		return "", xe.Wrap(err)
	}
	committed = true
	return s.ref(versionId), nil
}

func writeFile(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(0o644))
	if err != nil {
		return xe.Wrap(err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return xe.Wrap(err)
	}
	return xe.Wrap(f.Sync())
}

func (s *fsStore) Load(ctx context.Context, ref string) ([]byte, artifact.Metadata, error) {
	dir, err := s.dir(ref)
	if err != nil {
		return nil, artifact.Metadata{}, err
	}

	var meta artifact.Metadata
	metaJson, err := os.ReadFile(filepath.Join(dir, artifact.MetadataName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, meta, fmt.Errorf("%w: %s", artifact.ErrNotFound, ref)
	} else if err != nil {
		return nil, meta, xe.Wrap(err)
	}
	if err := json.Unmarshal(metaJson, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: metadata: %w", artifact.ErrCorrupted, err)
	}

	blob, err := readLimited(filepath.Join(dir, artifact.BlobName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, meta, fmt.Errorf("%w: %s has no model", artifact.ErrCorrupted, ref)
	} else if err != nil {
		return nil, meta, err
	}
	if err := artifact.Verify(blob, meta); err != nil {
		return nil, meta, err
	}
	return blob, meta, nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	blob, err := io.ReadAll(io.LimitReader(f, artifact.MaxBlobSize+1))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if artifact.MaxBlobSize < len(blob) {
		return nil, fmt.Errorf("%w: %s", artifact.ErrTooLarge, path)
	}
	return blob, nil
}
