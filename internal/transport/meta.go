package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"dex-market-data/internal/domain"
)

const metaSuffix = ".meta.json"

// Status is the cache state of one dataset request.
type Status string

const (
	StatusMissing Status = "missing"
	StatusCached  Status = "cached"
)

// Entry describes one cached dataset file. It is persisted next to the
// file as <file>.meta.json.
type Entry struct {
	Path         string             `json:"-"`
	Kind         domain.DatasetKind `json:"kind"`
	Bucket       domain.TimeBucket  `json:"bucket,omitempty"`
	PairIDs      []domain.PairID    `json:"pair_ids,omitempty"`
	Start        *time.Time         `json:"start,omitempty"`
	End          *time.Time         `json:"end,omitempty"`
	DownloadedAt time.Time          `json:"downloaded_at"`
	ETag         string             `json:"etag,omitempty"`
	SHA256       string             `json:"sha256"`
	Size         int64              `json:"size"`
	URL          string             `json:"url"`
}

func newEntry(req domain.DatasetRequest, path string) Entry {
	e := Entry{
		Path:    path,
		Kind:    req.Kind,
		Bucket:  req.Bucket,
		PairIDs: req.PairIDs,
	}
	if !req.Start.IsZero() {
		s := req.Start.UTC()
		e.Start = &s
	}
	if !req.End.IsZero() {
		end := req.End.UTC()
		e.End = &end
	}
	return e
}

func metaPath(path string) string {
	return path + metaSuffix
}

func isMetaFile(name string) bool {
	return strings.HasSuffix(name, metaSuffix)
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(metaPath(path))
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("parse cache metadata %s: %w", metaPath(path), err)
	}
	e.Path = path
	return e, nil
}

// writeEntry replaces the sidecar with a rename so readers never see half of it.
func writeEntry(e Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache metadata: %w", err)
	}
	tmp := metaPath(e.Path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	if err := os.Rename(tmp, metaPath(e.Path)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write cache metadata: %w", err)
	}
	return nil
}
