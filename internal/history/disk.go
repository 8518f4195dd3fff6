package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Blobs smaller than this are never worth compressing.
const compressThreshold = 1024

const (
	rawExt        = ".bin"
	compressedExt = ".zst"
)

// DiskBlobStore stores audio payloads as individual files, optionally
// zstd-compressed at rest. Compression state is carried in the file
// extension so the store needs no index of its own.
type DiskBlobStore struct {
	basePath         string
	compressionLevel int

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu     sync.Mutex
	opened bool
}

// NewDiskBlobStore creates a disk blob store rooted at basePath. The store
// is unusable until Open succeeds.
func NewDiskBlobStore(basePath string, compressionLevel int) *DiskBlobStore {
	return &DiskBlobStore{
		basePath:         basePath,
		compressionLevel: compressionLevel,
	}
}

// Open creates the storage directory and verifies it is writable. Safe to
// call repeatedly; subsequent calls on an opened store are no-ops.
func (s *DiskBlobStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Probe writability so a read-only directory fails here rather than
	// on the first Put.
	probe, err := os.CreateTemp(s.basePath, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if s.compressionLevel > 0 {
		s.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(s.compressionLevel)))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}

		s.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	s.opened = true
	return nil
}

// Put stores or overwrites the payload under id.
func (s *DiskBlobStore) Put(id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return ErrStorageUnavailable
	}

	dataToWrite := payload
	ext := rawExt
	if s.encoder != nil && len(payload) > compressThreshold {
		compressed := s.encoder.EncodeAll(payload, nil)
		// Only use compression if it actually reduces size
		if len(compressed) < len(payload) {
			dataToWrite = compressed
			ext = compressedExt
		}
	}

	base := s.filePath(id)
	if err := writeFileAtomic(base+ext, dataToWrite); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	// An overwrite may switch extensions; drop the stale twin.
	if ext == rawExt {
		os.Remove(base + compressedExt)
	} else {
		os.Remove(base + rawExt)
	}

	return nil
}

// Get returns the payload stored under id, decompressing as needed.
func (s *DiskBlobStore) Get(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil, ErrStorageUnavailable
	}

	base := s.filePath(id)

	if data, err := os.ReadFile(base + compressedExt); err == nil {
		if s.decoder == nil {
			// Compressed payload but compression is now disabled;
			// a throwaway decoder still reads it.
			dec, derr := zstd.NewReader(nil)
			if derr != nil {
				return nil, fmt.Errorf("failed to create zstd decoder: %w", derr)
			}
			defer dec.Close()
			return dec.DecodeAll(data, nil)
		}
		decompressed, derr := s.decoder.DecodeAll(data, nil)
		if derr != nil {
			return nil, fmt.Errorf("failed to decompress audio blob: %w", derr)
		}
		return decompressed, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read audio blob: %w", err)
	}

	data, err := os.ReadFile(base + rawExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio blob: %w", err)
	}
	return data, nil
}

// Delete removes the payload stored under id, if any.
func (s *DiskBlobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return ErrStorageUnavailable
	}

	base := s.filePath(id)
	for _, ext := range []string{rawExt, compressedExt} {
		if err := os.Remove(base + ext); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete audio blob: %w", err)
		}
	}
	return nil
}

// Size returns the total on-disk size of all stored blobs.
func (s *DiskBlobStore) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, ErrStorageUnavailable
	}

	var total int64
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage directory: %w", err)
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if ext != rawExt && ext != compressedExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Close releases the compression handles. The store can be reopened.
func (s *DiskBlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
	s.opened = false
	return nil
}

func (s *DiskBlobStore) filePath(id string) string {
	// Use SHA256 hash of id for the filename so arbitrary ids are safe
	hash := sha256.Sum256([]byte(id))
	return filepath.Join(s.basePath, hex.EncodeToString(hash[:16]))
}

// writeFileAtomic writes to a temp file first, then renames (atomic on
// most systems).
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
