package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/opst/ripen/pkg/domain"
)

const (
	// file name of serialized models
	BlobName = "model.bin"

	// file name of metadata
	MetadataName = "run_metadata.json"

	// artifacts larger than this are refused.
	MaxBlobSize = 64 << 20
)

var (
	ErrTooLarge = errors.New("artifact too large")

	// stored artifact does not match its metadata.
	ErrCorrupted = errors.New("artifact corrupted")

	// version id can not be a part of paths or keys.
	ErrBadVersionId = errors.New("bad version id")

	// artifact is not stored in the store.
	ErrNotFound = fmt.Errorf("artifact: %w", domain.ErrMissing)
)

type BlobInfo struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Metadata describes a stored model.
type Metadata struct {
	VersionId       string            `json:"version_id"`
	SavedAt         time.Time         `json:"saved_at"`
	Algorithm       string            `json:"algorithm"`
	FeatureNames    []string          `json:"feature_names"`
	ExcludedColumns []string          `json:"excluded_columns"`
	Hyperparameters map[string]any    `json:"hyperparameters"`
	TrainingWindow  domain.TimeWindow `json:"training_window"`
	RowCount        int               `json:"row_count"`
	Metrics         domain.Metrics    `json:"metrics"`
	Blob            BlobInfo          `json:"model"`
}

// Interface of artifact stores.
//
// A model blob and its metadata are stored together:
// Load never sees a blob without its metadata, or metadata without its blob.
type Interface interface {
	// Save a model blob with its metadata.
	//
	// Metadata.VersionId and Metadata.Blob are set by the store.
	//
	// # Returns
	//
	// - string: reference to the artifact, to be passed to Load.
	//
	// - error: ErrTooLarge if the blob is larger than MaxBlobSize.
	Save(ctx context.Context, versionId string, blob []byte, meta Metadata) (string, error)

	// Load a model blob and its metadata.
	//
	// If the reference points nothing, error is ErrNotFound.
	// If the blob does not match with its metadata, error is ErrCorrupted.
	Load(ctx context.Context, ref string) ([]byte, Metadata, error)
}

var versionIdPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// CheckVersionId checks that the version id is usable as a path segment.
func CheckVersionId(versionId string) error {
	if !versionIdPattern.MatchString(versionId) {
		return fmt.Errorf("%w: %q", ErrBadVersionId, versionId)
	}
	return nil
}

// Seal fills metadata of the blob.
func Seal(versionId string, blob []byte, meta Metadata) (Metadata, error) {
	if err := CheckVersionId(versionId); err != nil {
		return meta, err
	}
	if MaxBlobSize < len(blob) {
		return meta, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTooLarge, len(blob), MaxBlobSize)
	}
	sum := sha256.Sum256(blob)
	meta.VersionId = versionId
	meta.Blob = BlobInfo{
		Name:   BlobName,
		Size:   int64(len(blob)),
		SHA256: hex.EncodeToString(sum[:]),
	}
	return meta, nil
}

// Verify the blob with its metadata.
func Verify(blob []byte, meta Metadata) error {
	if int64(len(blob)) != meta.Blob.Size {
		return fmt.Errorf(
			"%w: size of %s is %d bytes, but metadata says %d bytes",
			ErrCorrupted, meta.VersionId, len(blob), meta.Blob.Size,
		)
	}
	sum := sha256.Sum256(blob)
	if actual := hex.EncodeToString(sum[:]); actual != meta.Blob.SHA256 {
		return fmt.Errorf("%w: checksum of %s does not match", ErrCorrupted, meta.VersionId)
	}
	return nil
}
