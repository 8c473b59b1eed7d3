// Package report persists evaluation reports as JSON in the key-value store.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/rankeval/internal/db"
	"github.com/kailas-cloud/rankeval/internal/domain"
)

// store is the consumer interface for report persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// Store reads and writes evaluation reports.
type Store struct {
	store     store
	keyPrefix string
	ttl       time.Duration // 0 = keep forever
}

// New creates a report store. ttl of 0 keeps reports until deleted.
func New(s store, keyPrefix string, ttl time.Duration) *Store {
	return &Store{
		store:     s,
		keyPrefix: keyPrefix + "report:",
		ttl:       ttl,
	}
}

// Save persists the report under its ID.
func (s *Store) Save(ctx context.Context, r domain.EvaluationReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", r.ID, err)
	}

	key := s.keyPrefix + r.ID
	if s.ttl > 0 {
		if err := s.store.SetWithTTL(ctx, key, data, s.ttl); err != nil {
			return fmt.Errorf("save report %s: %w", r.ID, err)
		}
		return nil
	}
	if err := s.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

// Get fetches a report by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.EvaluationReport, error) {
	data, err := s.store.Get(ctx, s.keyPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.EvaluationReport{}, domain.ErrReportNotFound
		}
		return domain.EvaluationReport{}, fmt.Errorf("get report %s: %w", id, err)
	}

	var r domain.EvaluationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("unmarshal report %s: %w", id, err)
	}
	return r, nil
}

// ListIDs returns the IDs of all stored reports.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, s.keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(s.keyPrefix):])
	}
	return ids, nil
}

// Delete removes a report by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, s.keyPrefix+id); err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return nil
}
