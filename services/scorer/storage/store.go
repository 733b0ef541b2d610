// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// ErrNotFound is returned when a job has no stored report.
var ErrNotFound = errors.New("record not found")

// Key layout. Events sort by creation time within a job so that prefix
// iteration returns them in append order.
//
//	report:{job_id}                          -> ScoreReport (latest snapshot)
//	event:{job_id}:{rfc3339nano}:{event_id}  -> FeedbackEvent
//	base:{job_id}                            -> ScoreReport (immutable base)
const (
	reportPrefix = "report:"
	basePrefix   = "base:"
	eventPrefix  = "event:"
)

// Store is the persistence layer for evaluation jobs.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db *badger.DB
}

// NewStore opens the embedded database.
func NewStore(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database. Call on shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Reports
// =============================================================================

// SaveReport persists the report as the job's current snapshot,
// overwriting any previous snapshot for the same job_id.
func (s *Store) SaveReport(report *datatypes.ScoreReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.JobID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(reportPrefix+report.JobID), data)
	})
}

// GetReport fetches the current snapshot for a job.
func (s *Store) GetReport(jobID string) (*datatypes.ScoreReport, error) {
	var report datatypes.ScoreReport
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportPrefix + jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns summaries of every stored job, newest first.
func (s *Store) ListReports() ([]datatypes.ReportSummary, error) {
	var summaries []datatypes.ReportSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reportPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var report datatypes.ScoreReport
				if err := json.Unmarshal(val, &report); err != nil {
					return err
				}
				summaries = append(summaries, report.Summary())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(a, b int) bool {
		if !summaries[a].CreatedAt.Equal(summaries[b].CreatedAt) {
			return summaries[a].CreatedAt.After(summaries[b].CreatedAt)
		}
		return summaries[a].JobID < summaries[b].JobID
	})
	return summaries, nil
}

// SaveBaseReport persists the original, as-evaluated report. The base is
// written once per job and never mutated; override recomputation always
// folds the ledger over these findings, not the current snapshot.
func (s *Store) SaveBaseReport(report *datatypes.ScoreReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode base report %s: %w", report.JobID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(basePrefix+report.JobID), data)
	})
}

// GetBaseReport fetches the immutable base report for a job.
func (s *Store) GetBaseReport(jobID string) (*datatypes.ScoreReport, error) {
	var report datatypes.ScoreReport
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(basePrefix + jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// =============================================================================
// Feedback events
// =============================================================================

// AppendEvent persists one feedback event. Events are append-only: a key
// collision would mean the same event written twice, which Set treats as
// an idempotent overwrite of identical bytes.
func (s *Store) AppendEvent(event *datatypes.FeedbackEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	key := fmt.Sprintf("%s%s:%s:%s",
		eventPrefix, event.JobID,
		event.CreatedAt.UTC().Format(time.RFC3339Nano), event.EventID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// ListEvents returns a job's feedback events in append order.
func (s *Store) ListEvents(jobID string) ([]datatypes.FeedbackEvent, error) {
	var events []datatypes.FeedbackEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix + jobID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var event datatypes.FeedbackEvent
				if err := json.Unmarshal(val, &event); err != nil {
					return err
				}
				events = append(events, event)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// =============================================================================
// Stats
// =============================================================================

// Stats summarizes the stored corpus for the operational endpoint.
type Stats struct {
	Reports      int     `json:"reports"`
	Events       int     `json:"events"`
	AverageScore float64 `json:"average_score"`
}

// ComputeStats scans the store and aggregates headline numbers.
func (s *Store) ComputeStats() (Stats, error) {
	var stats Stats
	var scoreSum float64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			switch {
			case strings.HasPrefix(key, reportPrefix):
				err := it.Item().Value(func(val []byte) error {
					var report datatypes.ScoreReport
					if err := json.Unmarshal(val, &report); err != nil {
						return err
					}
					stats.Reports++
					scoreSum += report.FinalScore
					return nil
				})
				if err != nil {
					return err
				}
			case strings.HasPrefix(key, eventPrefix):
				stats.Events++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.Reports > 0 {
		stats.AverageScore = scoreSum / float64(stats.Reports)
	}
	return stats, nil
}
