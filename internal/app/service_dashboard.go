package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"forgeboard/internal/search"
	"forgeboard/internal/store"

	"golang.org/x/sync/errgroup"
)

const dashboardRecentLimit = 5

var dashboardKinds = []string{store.KindEntity, store.KindArt, store.KindLore, store.KindThought}

// Dashboard gathers counts, recent items and open thoughts concurrently.
func (s *Service) Dashboard(ctx context.Context) (map[string]any, error) {
	var (
		mu           sync.Mutex
		counts       = make(map[string]map[string]any, len(dashboardKinds))
		recent       = make(map[string][]map[string]any, len(dashboardKinds))
		openThoughts map[string]int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, kind := range dashboardKinds {
		group.Go(func() error {
			statusCounts, err := s.store.CountByStatus(groupCtx, kind)
			if err != nil {
				return fmt.Errorf("count %s: %w", kind, err)
			}
			total := 0
			byStatus := make(map[string]int, len(statusCounts))
			for _, sc := range statusCounts {
				byStatus[sc.Status] = sc.Count
				total += sc.Count
			}
			mu.Lock()
			counts[kind] = map[string]any{"total": total, "byStatus": byStatus}
			mu.Unlock()
			return nil
		})
		group.Go(func() error {
			items, err := s.store.RecentItems(groupCtx, kind, dashboardRecentLimit)
			if err != nil {
				return fmt.Errorf("recent %s: %w", kind, err)
			}
			payload := make([]map[string]any, 0, len(items))
			for _, item := range items {
				payload = append(payload, recentPayload(item))
			}
			mu.Lock()
			recent[kind] = payload
			mu.Unlock()
			return nil
		})
	}
	group.Go(func() error {
		byPriority, err := s.store.OpenThoughtsByPriority(groupCtx)
		if err != nil {
			return fmt.Errorf("open thoughts: %w", err)
		}
		mu.Lock()
		openThoughts = byPriority
		mu.Unlock()
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if openThoughts == nil {
		openThoughts = map[string]int{}
	}
	for _, priority := range []string{"low", "medium", "high", "critical"} {
		if _, ok := openThoughts[priority]; !ok {
			openThoughts[priority] = 0
		}
	}
	return map[string]any{
		"counts":       counts,
		"recent":       recent,
		"openThoughts": openThoughts,
	}, nil
}

func (s *Service) ListTags(ctx context.Context) (map[string]any, error) {
	counts, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(counts))
	for _, tc := range counts {
		payload = append(payload, map[string]any{"name": tc.Name, "count": tc.Count})
	}
	return map[string]any{"tags": payload}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 50 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Text == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}, nil
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(ctx, q), nil
}
