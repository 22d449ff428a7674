package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/trainyard-cloud/trainyard/internal/event"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates no metadata row exists for a digest.
	ErrNotFound = errors.New("artifact not found")
	// ErrFileMissing indicates a row exists but its blob is gone,
	// i.e. the filesystem and the metadata table have drifted.
	ErrFileMissing = errors.New("artifact file missing")
	// ErrHashMismatch indicates the blob's bytes no longer hash
	// to the row's digest.
	ErrHashMismatch = errors.New("artifact content does not match digest")
)

// Store is the content-addressed blob store. Blobs live in a
// two-level sharded tree under root, keyed by the lowercase hex
// SHA-256 of their content; metadata rows live in the artifacts
// table. Only this store writes to the tree.
type Store struct {
	db   *gorm.DB
	root string
	bus  event.Bus
}

// Stats summarizes the store from its metadata rows alone.
type Stats struct {
	Count     int64 `json:"count"`
	TotalSize int64 `json:"total_size"`
}

func NewStore(conn *gorm.DB, root string, bus event.Bus) *Store {
	return &Store{db: conn, root: root, bus: bus}
}

// Digest returns the lowercase hex SHA-256 of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// path shards a digest as <root>/<first 2>/<next 2>/<digest>.
func (s *Store) path(digest string) string {
	return filepath.Join(s.root, digest[:2], digest[2:4], digest)
}

// Store ingests content and returns its digest. Re-ingesting
// identical content is a no-op for both the file write and the
// metadata row, regardless of name or type.
func (s *Store) Store(
	ctx context.Context,
	content []byte,
	typ models.ArtifactType,
	name string,
	runID *uuid.UUID,
) (string, error) {
	digest := Digest(content)
	path := s.path(digest)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}

		// write to a temp name then rename, so a crash mid-write
		// never leaves a partial blob under its digest path
		tmp, err := os.CreateTemp(filepath.Dir(path), "."+digest+".*")
		if err != nil {
			return "", err
		}
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	record := &models.Artifact{
		Digest:    digest,
		RunID:     runID,
		Type:      typ,
		Name:      name,
		Size:      int64(len(content)),
		LocalPath: path,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record).Error
	if err != nil {
		return "", err
	}

	if s.bus != nil {
		payload, _ := json.Marshal(record)

		e := event.Event{
			Type:      event.TypeArtifactStored,
			Timestamp: time.Now().UTC(),
			Payload:   payload,
		}
		if runID != nil {
			e.RunID = *runID
		}

		s.bus.Publish(e)
	}

	return digest, nil
}

// StoreFile reads path and stores its content under its base name.
func (s *Store) StoreFile(
	ctx context.Context,
	path string,
	typ models.ArtifactType,
	runID *uuid.UUID,
) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return s.Store(ctx, content, typ, filepath.Base(path), runID)
}

// Get returns the metadata row for a digest.
func (s *Store) Get(ctx context.Context, digest string) (*models.Artifact, error) {
	var record models.Artifact

	err := s.db.WithContext(ctx).First(&record, "digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Retrieve returns the blob bytes for a digest. A row without a
// file surfaces ErrFileMissing so callers can schedule a
// corrective garbage collection pass.
func (s *Store) Retrieve(ctx context.Context, digest string) ([]byte, error) {
	record, err := s.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(record.LocalPath)
	if os.IsNotExist(err) {
		return nil, ErrFileMissing
	}
	if err != nil {
		return nil, err
	}

	return content, nil
}

// Verify recomputes the digest of the stored blob and compares it
// to the row's content key.
func (s *Store) Verify(ctx context.Context, digest string) error {
	content, err := s.Retrieve(ctx, digest)
	if err != nil {
		return err
	}

	if Digest(content) != digest {
		return ErrHashMismatch
	}

	return nil
}

// Delete removes the blob then its row. The file delete is best
// effort: a blob already gone is not an error here.
func (s *Store) Delete(ctx context.Context, digest string) error {
	record, err := s.Get(ctx, digest)
	if err != nil {
		return err
	}

	if err := os.Remove(record.LocalPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return s.db.WithContext(ctx).Delete(&models.Artifact{}, "digest = ?", digest).Error
}

// DeleteByRun removes every artifact owned by a run.
func (s *Store) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	var records []models.Artifact

	err := s.db.WithContext(ctx).Find(&records, "run_id = ?", runID).Error
	if err != nil {
		return err
	}

	for _, record := range records {
		if err := s.Delete(ctx, record.Digest); err != nil {
			return err
		}
	}

	return nil
}

// GarbageCollect deletes orphaned artifacts (no owning run) whose
// createdAt is older than the retention window, returning the
// number removed. An artifact with a live run is never collected,
// however old.
func (s *Store) GarbageCollect(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var records []models.Artifact
	err := s.db.WithContext(ctx).
		Where("run_id IS NULL AND created_at < ?", cutoff).
		Find(&records).Error
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, record := range records {
		if err := s.Delete(ctx, record.Digest); err != nil {
			return removed, err
		}

		log.Debug("garbage collected artifact",
			"digest", record.Digest,
			"name", record.Name,
			"created_at", record.CreatedAt,
		)
		removed++
	}

	return removed, nil
}

// TotalSize sums the size column; an aggregate query, not a
// filesystem walk.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	var total *int64

	err := s.db.WithContext(ctx).
		Model(&models.Artifact{}).
		Select("SUM(size)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}

	if total == nil {
		return 0, nil
	}

	return *total, nil
}

// Count returns the number of metadata rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).
		Model(&models.Artifact{}).
		Count(&count).Error

	return count, err
}

// Stats bundles Count and TotalSize for the API surface.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	size, err := s.TotalSize(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{Count: count, TotalSize: size}, nil
}
