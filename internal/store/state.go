// Package store round-trips the corpus through a structured JSON state
// document for pause/resume across sessions and quota days.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pmorozova/litsort/internal/model"
)

// stateVersion guards against loading documents written by an incompatible
// future format
const stateVersion = 1

// StateDoc is the persisted form of the corpus and its durable consolidation
// state. Round-tripping through it reproduces the in-memory corpus exactly:
// record identifiers, field values, and category/theme assignments.
type StateDoc struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"` // ULID of the run that exported this document
	ExportedAt time.Time `json:"exported_at"`

	Topic          string             `json:"topic"`
	SpeciesEnabled bool               `json:"species_enabled"`
	BatchSeq       int                `json:"batch_seq"`
	Records        []model.Record     `json:"records"`
	Locks          model.LockSet      `json:"locks"`
	Rejections     model.RejectionLog `json:"rejections"`
}

// NewRunID returns a fresh ULID for stamping exported state
func NewRunID() string {
	return ulid.Make().String()
}

// FromCorpus captures the corpus into a state document
func FromCorpus(c *model.Corpus, runID string) *StateDoc {
	return &StateDoc{
		Version:        stateVersion,
		RunID:          runID,
		ExportedAt:     time.Now().UTC(),
		Topic:          c.Topic,
		SpeciesEnabled: c.SpeciesEnabled,
		BatchSeq:       c.BatchSeq,
		Records:        c.Records,
		Locks:          c.Locks,
		Rejections:     c.Rejections,
	}
}

// ToCorpus restores a corpus from a state document
func (d *StateDoc) ToCorpus() *model.Corpus {
	c := model.NewCorpus(d.Topic, d.SpeciesEnabled)
	c.BatchSeq = d.BatchSeq
	c.Records = d.Records
	c.Locks = d.Locks
	c.Rejections = d.Rejections
	return c
}

// Save writes the corpus state to path atomically (temp file + rename)
func Save(path string, c *model.Corpus, runID string) error {
	doc := FromCorpus(c, runID)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".litsort-state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load reads a state document from path and restores the corpus
func Load(path string) (*model.Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc StateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	if doc.Version != stateVersion {
		return nil, fmt.Errorf("unsupported state version %d (want %d)", doc.Version, stateVersion)
	}

	return doc.ToCorpus(), nil
}
