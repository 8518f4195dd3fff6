package history

import (
	"bytes"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"
)

func legacyDataURI(payload []byte) string {
	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(payload)
}

// seedLegacyIndex writes an index containing entries in the old
// inline-payload format.
func seedLegacyIndex(t *testing.T, index *MetadataIndex, entries []Entry) {
	t.Helper()
	if err := index.Save(entries); err != nil {
		t.Fatalf("Failed to seed legacy index: %v", err)
	}
}

func TestMigrateLegacy_MovesInlinePayloads(t *testing.T) {
	blobs := NewMemoryBlobStore()
	index := NewMetadataIndex(filepath.Join(t.TempDir(), "history.json"), testLogger())

	audioA := []byte("legacy clip a")
	audioB := []byte("legacy clip b")
	seedLegacyIndex(t, index, []Entry{
		{ID: "a", Text: "first", Model: "m", CreatedAt: time.Now(), Audio: legacyDataURI(audioA)},
		{ID: "b", Text: "second", Model: "m", CreatedAt: time.Now(), Audio: legacyDataURI(audioB)},
	})

	cache, err := NewWithStores(blobs, index, 5, testLogger())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	migrated, err := cache.MigrateLegacy()
	if err != nil {
		t.Fatalf("MigrateLegacy failed: %v", err)
	}
	if migrated != 2 {
		t.Errorf("migrated = %d, want 2", migrated)
	}

	// Payloads moved to the blob store byte-for-byte
	for id, want := range map[string][]byte{"a": audioA, "b": audioB} {
		got, err := blobs.Get(id)
		if err != nil {
			t.Fatalf("Blob %s missing after migration: %v", id, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Blob %s mismatch after migration", id)
		}
	}

	// Inline fields stripped from the persisted index
	for _, entry := range index.Load() {
		if entry.Audio != "" {
			t.Errorf("Entry %s still carries inline audio", entry.ID)
		}
	}
}

func TestMigrateLegacy_Idempotent(t *testing.T) {
	blobs := NewMemoryBlobStore()
	index := NewMetadataIndex(filepath.Join(t.TempDir(), "history.json"), testLogger())

	seedLegacyIndex(t, index, []Entry{
		{ID: "a", Text: "first", Model: "m", CreatedAt: time.Now(), Audio: legacyDataURI([]byte("clip"))},
	})

	cache, err := NewWithStores(blobs, index, 5, testLogger())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	if _, err := cache.MigrateLegacy(); err != nil {
		t.Fatalf("First MigrateLegacy failed: %v", err)
	}
	firstList := cache.List()
	firstBlobs := blobs.Len()

	migrated, err := cache.MigrateLegacy()
	if err != nil {
		t.Fatalf("Second MigrateLegacy failed: %v", err)
	}
	if migrated != 0 {
		t.Errorf("Second run migrated = %d, want 0", migrated)
	}

	secondList := cache.List()
	if len(secondList) != len(firstList) {
		t.Fatalf("List changed between runs: %d vs %d entries", len(firstList), len(secondList))
	}
	for i := range firstList {
		if firstList[i].ID != secondList[i].ID {
			t.Errorf("List order changed between runs at %d", i)
		}
	}
	if blobs.Len() != firstBlobs {
		t.Errorf("Blob count changed between runs: %d vs %d", firstBlobs, blobs.Len())
	}
}

func TestMigrateLegacy_SkipsExistingBlob(t *testing.T) {
	blobs := NewMemoryBlobStore()
	index := NewMetadataIndex(filepath.Join(t.TempDir(), "history.json"), testLogger())

	// Blob already present, e.g. from an interrupted earlier migration
	existing := []byte("already stored")
	if err := blobs.Put("a", existing); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	seedLegacyIndex(t, index, []Entry{
		{ID: "a", Text: "first", Model: "m", CreatedAt: time.Now(), Audio: legacyDataURI([]byte("stale inline copy"))},
	})

	cache, err := NewWithStores(blobs, index, 5, testLogger())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	migrated, err := cache.MigrateLegacy()
	if err != nil {
		t.Fatalf("MigrateLegacy failed: %v", err)
	}
	if migrated != 1 {
		t.Errorf("migrated = %d, want 1", migrated)
	}

	got, err := blobs.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, existing) {
		t.Error("Existing blob was overwritten; migration must skip stored ids")
	}
	if entries := index.Load(); entries[0].Audio != "" {
		t.Error("Inline audio not stripped when blob already existed")
	}
}

func TestMigrateLegacy_DropsUndecodablePayload(t *testing.T) {
	blobs := NewMemoryBlobStore()
	index := NewMetadataIndex(filepath.Join(t.TempDir(), "history.json"), testLogger())

	seedLegacyIndex(t, index, []Entry{
		{ID: "a", Text: "first", Model: "m", CreatedAt: time.Now(), Audio: "data:audio/mpeg;base64,%%%not-base64%%%"},
	})

	cache, err := NewWithStores(blobs, index, 5, testLogger())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	migrated, err := cache.MigrateLegacy()
	if err != nil {
		t.Fatalf("MigrateLegacy failed: %v", err)
	}
	if migrated != 0 {
		t.Errorf("migrated = %d, want 0 for undecodable payload", migrated)
	}
	if blobs.Len() != 0 {
		t.Errorf("Blob count = %d, want 0", blobs.Len())
	}
	if entries := index.Load(); entries[0].Audio != "" {
		t.Error("Undecodable inline audio should still be stripped")
	}
}

func TestDecodeInlineAudio(t *testing.T) {
	payload := []byte{0xff, 0xf3, 0x44, 0x00} // mp3-ish header bytes

	got, err := decodeInlineAudio(legacyDataURI(payload))
	if err != nil {
		t.Fatalf("decode data URI failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("data URI round trip mismatch")
	}

	got, err = decodeInlineAudio(base64.StdEncoding.EncodeToString(payload))
	if err != nil {
		t.Fatalf("decode bare base64 failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("bare base64 round trip mismatch")
	}

	if _, err := decodeInlineAudio("data:audio/mpeg;base64"); err == nil {
		t.Error("expected error for data URI without comma")
	}
	if _, err := decodeInlineAudio("!!not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
