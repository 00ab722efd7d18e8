package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

var ErrFormatVersion = errors.New("unsupported snapshot format version")

type header struct {
	Format int
}

// FileStore keeps one zstd-compressed gob file per kind under dir.
type FileStore struct {
	dir    string
	logger *logrus.Logger
}

func NewFileStore(dir string, logger *logrus.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) Path(kind record.Kind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_embeddings.gob.zst", kind))
}

// Save writes snap through a temporary file and renames it into place, so a
// reader never sees a half written snapshot.
func (s *FileStore) Save(snap *embedding.Snapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := s.Path(snap.Kind)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := encode(tmp, snap); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish snapshot: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"kind":    snap.Kind,
		"vectors": snap.Len(),
		"model":   snap.ModelVersion,
		"path":    path,
	}).Info("embedding snapshot saved")
	return path, nil
}

// Load reads the snapshot of kind. A missing file yields an error matching
// os.ErrNotExist.
func (s *FileStore) Load(kind record.Kind) (*embedding.Snapshot, error) {
	f, err := os.Open(s.Path(kind))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.Path(kind), err)
	}
	if snap.Kind != kind {
		return nil, fmt.Errorf("snapshot %s holds %s vectors", s.Path(kind), snap.Kind)
	}
	return snap, nil
}

func encode(f *os.File, snap *embedding.Snapshot) error {
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(header{Format: formatVersion}); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	if err := enc.Encode(snap); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return zw.Close()
}

func decode(f *os.File) (*embedding.Snapshot, error) {
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Format != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrFormatVersion, h.Format)
	}
	var snap embedding.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return nil, fmt.Errorf("snapshot has %d ids for %d vectors", len(snap.IDs), len(snap.Vectors))
	}
	return &snap, nil
}
