package artifact_test

import (
	"errors"
	"testing"

	"github.com/opst/ripen/pkg/domain/model/artifact"
	"github.com/opst/ripen/pkg/utils/try"
)

func TestSeal(t *testing.T) {
	t.Run("it fills the version id and the blob information", func(t *testing.T) {
		meta := try.To(artifact.Seal("20240101_000000.000001", []byte("model"), artifact.Metadata{})).OrFatal(t)
		if meta.VersionId != "20240101_000000.000001" {
			t.Errorf("version id: %s", meta.VersionId)
		}
		if meta.Blob.Name != artifact.BlobName || meta.Blob.Size != 5 || len(meta.Blob.SHA256) != 64 {
			t.Errorf("blob: %+v", meta.Blob)
		}
		if err := artifact.Verify([]byte("model"), meta); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it refuses too large blobs", func(t *testing.T) {
		blob := make([]byte, artifact.MaxBlobSize+1)
		if _, err := artifact.Seal("v1", blob, artifact.Metadata{}); !errors.Is(err, artifact.ErrTooLarge) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	for _, versionId := range []string{"", "../etc", "a/b", ".hidden", "with space"} {
		t.Run("it refuses version id "+versionId, func(t *testing.T) {
			if _, err := artifact.Seal(versionId, []byte{}, artifact.Metadata{}); !errors.Is(err, artifact.ErrBadVersionId) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	meta := try.To(artifact.Seal("v1", []byte("model"), artifact.Metadata{})).OrFatal(t)

	for name, blob := range map[string][]byte{
		"truncated": []byte("mode"),
		"modified":  []byte("mod3l"),
	} {
		t.Run("it detects "+name+" blobs", func(t *testing.T) {
			if err := artifact.Verify(blob, meta); !errors.Is(err, artifact.ErrCorrupted) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
