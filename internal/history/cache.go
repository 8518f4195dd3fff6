package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Cache orchestrates the two tiers: blob payloads in a BlobStore, ordered
// metadata in a MetadataIndex. It owns both exclusively; nothing else
// writes to them.
//
// Within one process a mutex serializes the read-modify-write of the list.
// Across processes there is no locking: the last index save wins, and a
// racing insert's metadata can be lost while its blob survives as a
// harmless orphan, bounded by the capacity window.
type Cache struct {
	mu sync.Mutex

	blobs  BlobStore
	index  *MetadataIndex
	max    int
	logger *log.Logger

	dataDir string
}

// New creates a cache persisted under cfg.DataDir, with audio blobs in an
// "audio" subdirectory and metadata in "history.json". A nil logger means
// log.Default. Returns ErrStorageUnavailable when blob storage cannot be
// acquired.
func New(cfg *Config, logger *log.Logger) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dataDir, err := cfg.resolveDataDir()
	if err != nil {
		return nil, err
	}

	blobs := NewDiskBlobStore(filepath.Join(dataDir, "audio"), cfg.CompressionLevel)
	index := NewMetadataIndex(filepath.Join(dataDir, "history.json"), logger)

	c, err := NewWithStores(blobs, index, cfg.MaxEntries, logger)
	if err != nil {
		return nil, err
	}
	c.dataDir = dataDir
	return c, nil
}

// NewWithStores creates a cache over explicit tiers. The blob store is
// opened once here and the handle reused for the cache's lifetime.
func NewWithStores(blobs BlobStore, index *MetadataIndex, maxEntries int, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.Default()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultConfig().MaxEntries
	}

	if err := blobs.Open(); err != nil {
		return nil, err
	}

	return &Cache{
		blobs:  blobs,
		index:  index,
		max:    maxEntries,
		logger: logger,
	}, nil
}

// Insert stores a freshly generated clip and returns its new entry. The
// blob is written first; if that fails the insert aborts with
// ErrWriteFailed and no metadata is touched. Entries beyond capacity are
// evicted from both tiers, oldest first.
//
// Blob deletes and the index save are not transactional: an interruption
// mid-prune can leave an orphan blob or a dangling entry. The former is
// harmless, the latter surfaces as ErrAudioMissing on Lookup.
func (c *Cache) Insert(text, model string, payload []byte) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		ID:        uuid.NewString(),
		Text:      text,
		Model:     model,
		CreatedAt: time.Now(),
	}

	if err := c.blobs.Put(entry.ID, payload); err != nil {
		return Entry{}, err
	}

	entries := append([]Entry{entry}, c.index.Load()...)
	entries = c.evictOverflow(entries)

	if err := c.index.Save(entries); err != nil {
		return Entry{}, fmt.Errorf("failed to save history index: %w", err)
	}

	c.logger.Debug("inserted history entry", "id", entry.ID, "model", model, "bytes", len(payload))
	return entry, nil
}

// Lookup returns the entry and payload for id. ErrNotFound means no such
// entry; ErrAudioMissing means the entry exists but its blob is gone, in
// which case the entry is still returned so callers can show its metadata.
func (c *Cache) Lookup(id string) (Entry, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.index.Load() {
		if entry.ID != id {
			continue
		}
		payload, err := c.blobs.Get(id)
		if errors.Is(err, ErrBlobNotFound) {
			c.logger.Warn("history entry has no stored audio", "id", id)
			return entry, nil, ErrAudioMissing
		}
		if err != nil {
			return entry, nil, fmt.Errorf("failed to fetch audio for %s: %w", id, err)
		}
		return entry, payload, nil
	}
	return Entry{}, nil, ErrNotFound
}

// List returns the current history, newest first. Returned entries never
// carry inline audio, even before migration has run.
func (c *Cache) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.index.Load()
	for i := range entries {
		entries[i].Audio = ""
	}
	return entries
}

// ClearAll deletes every stored blob, then persists an empty list. A blob
// that fails to delete is logged and left behind as an orphan; it never
// blocks clearing the metadata.
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.index.Load() {
		if err := c.blobs.Delete(entry.ID); err != nil {
			c.logger.Warn("failed to delete audio blob", "id", entry.ID, "error", err)
		}
	}

	if err := c.index.Save(nil); err != nil {
		return fmt.Errorf("failed to clear history index: %w", err)
	}
	c.logger.Debug("history cleared")
	return nil
}

// Prune drops entries beyond capacity from both tiers and reports how many
// were removed. Useful after lowering MaxEntries on existing data.
func (c *Cache) Prune() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.index.Load()
	if len(entries) <= c.max {
		return 0, nil
	}

	removed := len(entries) - c.max
	entries = c.evictOverflow(entries)
	if err := c.index.Save(entries); err != nil {
		return 0, fmt.Errorf("failed to save history index: %w", err)
	}
	return removed, nil
}

// Stats reports the current state of both tiers.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobBytes, err := c.blobs.Size()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Entries:   len(c.index.Load()),
		Capacity:  c.max,
		BlobBytes: blobBytes,
		DataDir:   c.dataDir,
	}, nil
}

// Close releases the blob store handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blobs.Close()
}

// evictOverflow deletes blobs for every entry beyond capacity and returns
// the truncated list. All overflowed entries are processed, not just one,
// so bulk inserts and capacity changes drain fully. Callers hold c.mu.
func (c *Cache) evictOverflow(entries []Entry) []Entry {
	if len(entries) <= c.max {
		return entries
	}

	for _, evicted := range entries[c.max:] {
		if err := c.blobs.Delete(evicted.ID); err != nil {
			c.logger.Warn("failed to delete evicted audio blob", "id", evicted.ID, "error", err)
			continue
		}
		c.logger.Debug("evicted history entry", "id", evicted.ID)
	}

	return entries[:c.max:c.max]
}
