// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kb provides read access to the versioned Rule Knowledge Base.
//
// The knowledge base is produced by the (external) ingestion subsystem as
// immutable JSON snapshots named kb_{version}_{locale}.json under a data
// directory. This package never writes those files; it loads them into
// immutable in-memory indexes, caches them, and invalidates the cache when
// the ingestion subsystem drops a new snapshot (via fsnotify).
//
// # Thread Safety
//
// A loaded Index is immutable and safe for unlimited concurrent readers.
// The Store's cache is protected by a RWMutex.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// ErrNotFound is returned when no knowledge base matches the requested
// version and locale.
var ErrNotFound = errors.New("knowledge base not found")

// ErrRuleNotFound is returned when a rule_id does not resolve within the
// requested knowledge base version.
var ErrRuleNotFound = errors.New("rule not found in knowledge base")

// =============================================================================
// Index
// =============================================================================

// Index is one loaded, immutable knowledge base with O(1) rule lookup.
type Index struct {
	kb   *datatypes.KnowledgeBase
	byID map[string]*datatypes.Rule
}

func newIndex(kb *datatypes.KnowledgeBase) *Index {
	byID := make(map[string]*datatypes.Rule, len(kb.Rules))
	for i := range kb.Rules {
		byID[kb.Rules[i].RuleID] = &kb.Rules[i]
	}
	return &Index{kb: kb, byID: byID}
}

// Version returns the kb_version stamp of this index.
func (i *Index) Version() string { return i.kb.KBVersion }

// RubricVersion returns the rubric_version the ingestion pipeline paired
// with this knowledge base.
func (i *Index) RubricVersion() string { return i.kb.RubricVersion }

// Locale returns the target locale this knowledge base covers.
func (i *Index) Locale() string { return i.kb.Locale }

// Rules returns all rules in ingestion order. Callers must not mutate.
func (i *Index) Rules() []datatypes.Rule { return i.kb.Rules }

// Rule resolves a rule_id, or returns ErrRuleNotFound.
func (i *Index) Rule(ruleID string) (*datatypes.Rule, error) {
	rule, ok := i.byID[ruleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrRuleNotFound, ruleID, i.kb.KBVersion)
	}
	return rule, nil
}

// Has reports whether a rule_id resolves in this knowledge base.
func (i *Index) Has(ruleID string) bool {
	_, ok := i.byID[ruleID]
	return ok
}

// =============================================================================
// Store
// =============================================================================

// Store loads and caches knowledge base snapshots from a directory.
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Index // keyed by "{version}_{locale}"
}

// NewStore creates a Store over the given snapshot directory. The directory
// is created if missing so a fresh deployment starts clean.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create kb directory: %w", err)
	}
	return &Store{dir: dir, cache: make(map[string]*Index)}, nil
}

// Watch invalidates the cache whenever the ingestion subsystem writes a new
// snapshot into the directory. Blocks until ctx is cancelled; run it on its
// own goroutine.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create kb watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch kb directory %s: %w", s.dir, err)
	}
	slog.Info("Watching knowledge base directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, "kb_") || !strings.HasSuffix(name, ".json") {
				continue
			}
			s.mu.Lock()
			s.cache = make(map[string]*Index)
			s.mu.Unlock()
			slog.Info("Knowledge base snapshot changed, cache invalidated", "file", name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("KB watcher error", "error", err)
		}
	}
}

// List returns metadata for every snapshot in the directory, newest first.
// Embeddings are not loaded; rule slices are cleared to keep the listing
// light.
func (s *Store) List() ([]datatypes.KnowledgeBase, error) {
	files, err := s.snapshotFiles()
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.KnowledgeBase, 0, len(files))
	for _, file := range files {
		kb, err := s.readSnapshot(file)
		if err != nil {
			slog.Warn("Skipping unreadable KB snapshot", "file", file, "error", err)
			continue
		}
		kb.RuleCount = len(kb.Rules)
		kb.Rules = nil
		out = append(out, *kb)
	}
	return out, nil
}

// Resolve loads the knowledge base for (version, locale). An empty version
// selects the newest snapshot for the locale, mirroring how the ingestion
// pipeline names files with sortable timestamps.
func (s *Store) Resolve(version, locale string) (*Index, error) {
	if version != "" {
		return s.load(version, locale)
	}

	files, err := s.snapshotFiles()
	if err != nil {
		return nil, err
	}
	suffix := fmt.Sprintf("_%s.json", locale)
	var candidates []string
	for _, file := range files {
		if strings.HasSuffix(filepath.Base(file), suffix) {
			candidates = append(candidates, file)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: locale %s", ErrNotFound, locale)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	kb, err := s.readSnapshot(candidates[0])
	if err != nil {
		return nil, err
	}
	return s.load(kb.KBVersion, locale)
}

// GetRules implements the KB read contract: all rules for one version and
// locale.
func (s *Store) GetRules(version, locale string) ([]datatypes.Rule, error) {
	index, err := s.Resolve(version, locale)
	if err != nil {
		return nil, err
	}
	return index.Rules(), nil
}

// GetRule implements the KB read contract: one rule by id within a version.
// Locale is not needed because rule_ids are globally unique; the version's
// snapshots are scanned.
func (s *Store) GetRule(ruleID, version string) (*datatypes.Rule, error) {
	files, err := s.snapshotFiles()
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("kb_%s_", version)
	for _, file := range files {
		if !strings.HasPrefix(filepath.Base(file), prefix) {
			continue
		}
		kb, err := s.readSnapshot(file)
		if err != nil {
			continue
		}
		index := newIndex(kb)
		if rule, err := index.Rule(ruleID); err == nil {
			return rule, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrRuleNotFound, ruleID, version)
}

func (s *Store) load(version, locale string) (*Index, error) {
	key := version + "_" + locale

	s.mu.RLock()
	index, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return index, nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("kb_%s_%s.json", version, locale))
	kb, err := s.readSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: version %s locale %s", ErrNotFound, version, locale)
		}
		return nil, err
	}
	index = newIndex(kb)

	s.mu.Lock()
	s.cache[key] = index
	s.mu.Unlock()
	return index, nil
}

func (s *Store) snapshotFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read kb directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "kb_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, filepath.Join(s.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) readSnapshot(path string) (*datatypes.KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kb datatypes.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("decode kb snapshot %s: %w", filepath.Base(path), err)
	}
	return &kb, nil
}
