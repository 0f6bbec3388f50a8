// Package state persists deployment progress between runs. Each cluster
// gets a single JSON document recording which phases completed, the
// details they harvested, and the resources they created. The document is
// the source of truth for idempotent re-runs: a completed phase is
// skipped, an invalidated one re-executed.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
)

// SchemaVersion identifies the on-disk document layout.
const SchemaVersion = 1

// stateDirName is the per-user directory holding one subdirectory per
// cluster.
const stateDirName = ".pxkube"

// PhaseRecord is the persisted outcome of one completed phase.
type PhaseRecord struct {
	Completed bool              `json:"completed"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Document is the full persisted state for one cluster. Resources is
// keyed by resource kind, then by resource identifier, mapping to a
// short record of what was created.
type Document struct {
	Version     int                          `json:"version"`
	Phases      map[string]PhaseRecord       `json:"phases"`
	Resources   map[string]map[string]string `json:"resources,omitempty"`
	LastUpdated time.Time                    `json:"last_updated"`
}

func newDocument() *Document {
	return &Document{
		Version:   SchemaVersion,
		Phases:    make(map[string]PhaseRecord),
		Resources: make(map[string]map[string]string),
	}
}

// Store owns the state document for one cluster and persists every
// mutation immediately.
type Store struct {
	path string
	doc  *Document
	log  logr.Logger
}

// DefaultPath returns the state file location for the named cluster,
// ~/.pxkube/<cluster>/state.json.
func DefaultPath(cluster string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, stateDirName, cluster, "state.json"), nil
}

// Load opens the store at path. A missing, empty, or corrupt file yields
// a fresh document rather than an error: the phase verifiers rediscover
// what actually exists, so starting from scratch is always safe.
func Load(path string, log logr.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("state path cannot be empty")
	}

	s := &Store{path: path, doc: newDocument(), log: log}

	data, err := os.ReadFile(path) // #nosec G304 -- path from validated config
	if err != nil {
		if !os.IsNotExist(err) {
			log.Info("state file unreadable, starting fresh", "path", path, "error", err.Error())
		}
		return s, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Info("state file corrupt, starting fresh", "path", path, "error", err.Error())
		return s, nil
	}
	if doc.Phases == nil {
		doc.Phases = make(map[string]PhaseRecord)
	}
	if doc.Resources == nil {
		doc.Resources = make(map[string]map[string]string)
	}
	doc.Version = SchemaVersion
	s.doc = &doc
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a deep copy of the current document for read-only
// display.
func (s *Store) Snapshot() Document {
	out := Document{
		Version:     s.doc.Version,
		Phases:      make(map[string]PhaseRecord, len(s.doc.Phases)),
		Resources:   make(map[string]map[string]string, len(s.doc.Resources)),
		LastUpdated: s.doc.LastUpdated,
	}
	for name, rec := range s.doc.Phases {
		cp := rec
		if rec.Details != nil {
			cp.Details = make(map[string]string, len(rec.Details))
			for k, v := range rec.Details {
				cp.Details[k] = v
			}
		}
		out.Phases[name] = cp
	}
	for kind, entries := range s.doc.Resources {
		cp := make(map[string]string, len(entries))
		for id, record := range entries {
			cp[id] = record
		}
		out.Resources[kind] = cp
	}
	return out
}

// IsComplete reports whether the named phase completed in a prior run.
func (s *Store) IsComplete(phase string) bool {
	rec, ok := s.doc.Phases[phase]
	return ok && rec.Completed
}

// Details returns a copy of the harvested details of a completed phase.
// The second return is false when the phase never completed.
func (s *Store) Details(phase string) (map[string]string, bool) {
	rec, ok := s.doc.Phases[phase]
	if !ok || !rec.Completed {
		return nil, false
	}
	out := make(map[string]string, len(rec.Details))
	for k, v := range rec.Details {
		out[k] = v
	}
	return out, true
}

// MarkComplete records the phase as done with its harvested details and
// persists immediately.
func (s *Store) MarkComplete(phase string, details map[string]string) error {
	s.doc.Phases[phase] = PhaseRecord{
		Completed: true,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	return s.save()
}

// Invalidate clears the completion record of a single phase, typically
// because its verifier found the real resource missing or drifted.
func (s *Store) Invalidate(phase string) error {
	if _, ok := s.doc.Phases[phase]; !ok {
		return nil
	}
	delete(s.doc.Phases, phase)
	s.log.Info("phase record invalidated", "phase", phase)
	return s.save()
}

// RecordResource remembers something a phase created, grouped by kind,
// for status display and cleanup.
func (s *Store) RecordResource(kind, id, record string) error {
	if s.doc.Resources[kind] == nil {
		s.doc.Resources[kind] = make(map[string]string)
	}
	s.doc.Resources[kind][id] = record
	return s.save()
}

// Resource looks up a recorded resource by kind and identifier.
func (s *Store) Resource(kind, id string) (string, bool) {
	v, ok := s.doc.Resources[kind][id]
	return v, ok
}

// Reset discards all progress and persists an empty document.
func (s *Store) Reset() error {
	s.doc = newDocument()
	return s.save()
}

// Delete removes the state file entirely. Used by cleanup after the
// resources themselves are gone.
func (s *Store) Delete() error {
	s.doc = newDocument()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// save writes the document atomically: marshal to a temp file in the
// same directory, then rename over the target. A crash mid-write leaves
// either the old document or the new one, never a torn file.
func (s *Store) save() error {
	s.doc.LastUpdated = time.Now().UTC()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
