package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logger.Named("search")}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

func (s *Service) meiliReady() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

// Index pushes one record to Meilisearch without blocking the caller.
func (s *Service) Index(rec Record) {
	if !s.meiliReady() {
		return
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	go func() {
		if err := s.meili.Index(rec.Type, []Record{rec}); err != nil {
			s.logger.Warn("index record", zap.String("type", string(rec.Type)), zap.String("id", rec.ID), zap.Error(err))
		}
	}()
}

// Delete removes one record from Meilisearch without blocking the caller.
func (s *Service) Delete(rtyp ResultType, id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.Delete(rtyp, id); err != nil {
			s.logger.Warn("delete record", zap.String("type", string(rtyp)), zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG reindexes all searchable records from PostgreSQL into
// Meilisearch and returns how many were pushed per type.
func (s *Service) ReindexAllFromPG(ctx context.Context) (map[ResultType]int, error) {
	if !s.meiliReady() {
		return nil, fmt.Errorf("meilisearch is not available")
	}
	if s.pgfts == nil {
		return nil, fmt.Errorf("postgres search source is not configured")
	}
	byType, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("reindex load: %w", err)
	}

	counts := make(map[ResultType]int, len(byType))
	for rtyp, records := range byType {
		if err := s.meili.Index(rtyp, records); err != nil {
			return counts, fmt.Errorf("reindex %s: %w", rtyp, err)
		}
		counts[rtyp] = len(records)
	}
	return counts, nil
}

// Close stops the Meilisearch health loop.
func (s *Service) Close() {
	if s != nil && s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
