package history

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
)

// MetadataIndex persists the ordered history list as a single JSON
// document. It is a dumb projection: callers always read and write the
// whole list, and capacity is enforced by the Cache, not here.
type MetadataIndex struct {
	path   string
	logger *log.Logger
}

// NewMetadataIndex creates an index backed by the file at path.
func NewMetadataIndex(path string, logger *log.Logger) *MetadataIndex {
	if logger == nil {
		logger = log.Default()
	}
	return &MetadataIndex{
		path:   path,
		logger: logger,
	}
}

// Load returns the persisted list, newest first. A missing file is an
// empty history; a corrupt or unreadable file is swallowed and treated the
// same, since corrupted history is not user-actionable.
func (ix *MetadataIndex) Load() []Entry {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ix.logger.Warn("could not read history index, starting empty", "path", ix.path, "error", err)
		}
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		ix.logger.Warn("history index corrupt, starting empty", "path", ix.path, "error", err)
		return nil
	}
	return entries
}

// Save persists the full list, replacing any previous value.
func (ix *MetadataIndex) Save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return writeFileAtomic(ix.path, data)
}
