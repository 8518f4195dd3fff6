package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Common errors for history cache operations
var (
	// ErrStorageUnavailable is returned when the blob store cannot be opened
	// at all. Callers should disable history features rather than retry.
	ErrStorageUnavailable = errors.New("audio storage unavailable")

	// ErrWriteFailed is returned when storing an audio payload fails.
	// The failed insert leaves existing history untouched and may be retried.
	ErrWriteFailed = errors.New("audio write failed")

	// ErrNotFound is returned when no history entry exists for an id
	ErrNotFound = errors.New("history entry not found")

	// ErrBlobNotFound is returned by blob stores for an absent key
	ErrBlobNotFound = errors.New("audio blob not found")

	// ErrAudioMissing is returned when a history entry exists but its audio
	// payload is gone. A consistency fault, distinct from ErrNotFound.
	ErrAudioMissing = errors.New("audio missing for history entry")
)

// Entry is one history record: the light projection of a generated clip.
// Entries are immutable after creation; regenerating the same text creates
// a new entry with a new id.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`

	// Audio carries the payload inline in the legacy single-store format,
	// encoded as a base64 data URI. Always empty after migration.
	Audio string `json:"audio,omitempty"`
}

// Config holds configuration for the history cache.
type Config struct {
	// DataDir is the directory holding both tiers. Empty means the
	// per-user default under os.UserHomeDir.
	DataDir string `env:"TTS_HISTORY_DATA_DIR"`

	// MaxEntries caps the history length. Eviction is by position,
	// oldest first, never by age.
	MaxEntries int `env:"TTS_HISTORY_MAX_ENTRIES" envDefault:"5"`

	// CompressionLevel is the zstd level for audio at rest (0 disables).
	CompressionLevel int `env:"TTS_HISTORY_COMPRESSION" envDefault:"3"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries:       5,
		CompressionLevel: 3,
	}
}

// LoadConfig reads configuration from TTS_HISTORY_* environment variables.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// resolveDataDir fills in the default data directory when unset.
func (c *Config) resolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cache", "tts-history"), nil
}

// BlobStore is a persistent key→binary-object map holding one audio
// payload per history entry. Implementations must treat payloads as opaque
// bytes and must not keep metadata of their own.
type BlobStore interface {
	// Open acquires the underlying storage handle. Idempotent; returns
	// ErrStorageUnavailable when the environment has no usable storage.
	Open() error

	// Put stores or overwrites the payload under id.
	Put(id string, payload []byte) error

	// Get returns the stored bytes, or ErrBlobNotFound for an absent key.
	// Any other error indicates underlying storage failure.
	Get(id string) ([]byte, error)

	// Delete removes the object if present. Deleting an absent key is a
	// no-op success.
	Delete(id string) error

	// Size reports the total bytes held by the store.
	Size() (int64, error)

	// Close releases the storage handle.
	Close() error
}

// Stats describes the current state of the cache.
type Stats struct {
	Entries   int
	Capacity  int
	BlobBytes int64
	DataDir   string
}
