package history

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MigrateLegacy moves inline audio payloads out of the metadata tier. The
// legacy single-store format embedded each clip in its entry as a base64
// data URI; migration decodes the payload into the blob store, skipping
// ids the store already holds, and strips the inline field. The rewritten
// list is persisted in one batched save.
//
// Safe to run on every startup: a second run finds nothing inline and
// returns 0. A blob write failure stops the pass; progress made so far is
// persisted and the remaining entries are picked up by the next run.
func (c *Cache) MigrateLegacy() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.index.Load()

	migrated := 0
	changed := false
	var failure error

	for i := range entries {
		if entries[i].Audio == "" {
			continue
		}

		payload, err := decodeInlineAudio(entries[i].Audio)
		if err != nil {
			// Undecodable legacy payload: nothing to salvage, drop it
			// like any other corrupt history data.
			c.logger.Warn("dropping unreadable legacy audio", "id", entries[i].ID, "error", err)
			entries[i].Audio = ""
			changed = true
			continue
		}

		if _, err := c.blobs.Get(entries[i].ID); errors.Is(err, ErrBlobNotFound) {
			if err := c.blobs.Put(entries[i].ID, payload); err != nil {
				failure = err
				break
			}
		} else if err != nil {
			failure = err
			break
		}

		entries[i].Audio = ""
		migrated++
		changed = true
	}

	if changed {
		if err := c.index.Save(entries); err != nil {
			return migrated, fmt.Errorf("failed to save migrated history index: %w", err)
		}
	}

	if failure != nil {
		return migrated, fmt.Errorf("legacy migration interrupted: %w", failure)
	}
	if migrated > 0 {
		c.logger.Debug("migrated legacy history entries", "count", migrated)
	}
	return migrated, nil
}

// decodeInlineAudio decodes a legacy inline payload, either a
// "data:<mime>;base64,<data>" URI or bare base64.
func decodeInlineAudio(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.New("malformed data URI")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
