package store

import (
	"context"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// MemoryStore is a thread-safe, process-local AnalysisStore. It keeps
// every analysis keyed by id plus a per-pipeline newest-first cache
// (an LRU, as backend/correlator's MemoryStore uses for dedupe) so
// repeated history/stats reads for the same pipeline don't re-sort the
// full map on every request.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*model.Analysis
	recentCache *lru.Cache[string, []*model.Analysis]
}

// NewMemoryStore creates an empty MemoryStore. cacheSize bounds the
// number of distinct pipelines whose sorted view is cached.
func NewMemoryStore(cacheSize int) *MemoryStore {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, _ := lru.New[string, []*model.Analysis](cacheSize)
	return &MemoryStore{
		byID:        make(map[string]*model.Analysis),
		recentCache: cache,
	}
}

// Upsert implements AnalysisStore.
func (s *MemoryStore) Upsert(_ context.Context, a *model.Analysis) error {
	if a == nil || a.ID == "" {
		return apperr.New(apperr.CodeInvalidInput, "analysis must have a non-empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[a.ID] = a
	s.recentCache.Remove(a.PipelineName)
	return nil
}

// allSorted returns every analysis, newest-first.
func (s *MemoryStore) allSorted() []*model.Analysis {
	out := make([]*model.Analysis, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) pipelineSorted(name string) []*model.Analysis {
	if cached, ok := s.recentCache.Get(name); ok {
		return cached
	}
	var out []*model.Analysis
	for _, a := range s.byID {
		if a.PipelineName == name {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	s.recentCache.Add(name, out)
	return out
}

// Query implements AnalysisStore.
func (s *MemoryStore) Query(_ context.Context, params QueryParams) ([]*model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var source []*model.Analysis
	if params.Pipeline != "" {
		source = s.pipelineSorted(params.Pipeline)
	} else {
		source = s.allSorted()
	}

	out := make([]*model.Analysis, 0, limit)
	for _, a := range source {
		if params.Since != nil && a.Timestamp.Before(*params.Since) {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetByPipeline implements AnalysisStore.
func (s *MemoryStore) GetByPipeline(ctx context.Context, name string, limit int) ([]*model.Analysis, error) {
	return s.Query(ctx, QueryParams{Pipeline: name, Limit: limit})
}

// OldestAndNewestForPipeline implements AnalysisStore.
func (s *MemoryStore) OldestAndNewestForPipeline(_ context.Context, name string) (*model.Analysis, *model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.pipelineSorted(name)
	if len(sorted) == 0 {
		return nil, nil, apperr.New(apperr.CodeNotFound, "no analyses found for pipeline "+name)
	}
	newest := sorted[0]
	oldest := sorted[len(sorted)-1]
	return oldest, newest, nil
}

// Stats implements AnalysisStore.
func (s *MemoryStore) Stats(_ context.Context, params StatsParams) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.allSorted()
	st := &Stats{}
	var scoreSum float64
	for _, a := range all {
		if params.ExcludeTestData && TestDataPattern.MatchString(a.PipelineName) {
			continue
		}
		st.TotalAnalyses++
		scoreSum += a.DriftScore
		for _, issue := range a.Issues {
			if isCriticalOrHigh(issue.Severity) {
				st.CriticalIssues++
			}
		}
		if st.LastAnalysis == nil || a.Timestamp.After(*st.LastAnalysis) {
			ts := a.Timestamp
			st.LastAnalysis = &ts
		}
	}
	if st.TotalAnalyses > 0 {
		st.AverageScore = round2(scoreSum / float64(st.TotalAnalyses))
	}
	return st, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
