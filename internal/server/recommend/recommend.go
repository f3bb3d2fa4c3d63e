// Package recommend composes the two ranking branches into the final
// catalog listing: personalized collaborative filtering when the caller has
// history, popularity as the always-present fallback.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/shopgraph/internal/catalog"
	"github.com/systemshift/shopgraph/internal/server/graph"
)

// Limit bounds for a single listing request.
const (
	DefaultLimit = 20
	MinLimit     = 1
	MaxLimit     = 50
)

// ParseLimit turns a raw query value into a usable limit: missing or
// non-numeric input falls back to the default, anything else is clamped to
// [MinLimit, MaxLimit].
func ParseLimit(raw string) int {
	if raw == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLimit
	}
	return clampLimit(n)
}

func clampLimit(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Options carries the caller's listing parameters.
type Options struct {
	Filter catalog.Filter
	Limit  int
}

// Engine produces ranked, filtered product listings.
type Engine struct {
	repo graph.Repository
	log  *logrus.Logger
}

// New creates an Engine on top of a graph repository.
func New(repo graph.Repository, log *logrus.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// List returns the ranked product listing for an optionally identified
// caller. The personalized branch is fetched only when a user id is present;
// the popularity branch is always fetched so a new user never sees an empty
// personalized result. Branches are unioned, deduplicated keeping the higher
// score, filtered in one pass, sorted by score descending and truncated.
func (e *Engine) List(ctx context.Context, userID string, opts Options) ([]catalog.ScoredProduct, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = clampLimit(limit)

	var personal []catalog.ScoredProduct
	if userID != "" {
		var err error
		personal, err = e.repo.RecommendationsFor(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("personalized branch: %w", err)
		}
	}

	popular, err := e.repo.PopularProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("popularity branch: %w", err)
	}

	merged := merge(personal, popular)
	merged = applyFilter(merged, opts.Filter)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	e.log.WithFields(logrus.Fields{
		"personalized": len(personal),
		"popular":      len(popular),
		"returned":     len(merged),
	}).Debug("ranked listing served")
	return merged, nil
}

// merge unions the two branches, keeping each product once with the higher
// of its two scores. Relative order within equal scores follows branch
// iteration order, personalized first.
func merge(personal, popular []catalog.ScoredProduct) []catalog.ScoredProduct {
	out := make([]catalog.ScoredProduct, 0, len(personal)+len(popular))
	index := make(map[string]int, len(personal)+len(popular))

	for _, batch := range [][]catalog.ScoredProduct{personal, popular} {
		for _, sp := range batch {
			if i, ok := index[sp.ID]; ok {
				if sp.Score > out[i].Score {
					out[i].Score = sp.Score
				}
				continue
			}
			index[sp.ID] = len(out)
			out = append(out, sp)
		}
	}
	return out
}

// applyFilter restricts the unioned candidate set in a single pass, so the
// predicates act uniformly regardless of which branch produced a candidate.
func applyFilter(items []catalog.ScoredProduct, f catalog.Filter) []catalog.ScoredProduct {
	if f.IsZero() {
		return items
	}
	out := items[:0]
	for _, sp := range items {
		if f.Query != "" && !strings.Contains(strings.ToLower(sp.Name), strings.ToLower(f.Query)) {
			continue
		}
		if f.Brand != "" && (sp.Brand == nil || !strings.EqualFold(sp.Brand.Name, f.Brand)) {
			continue
		}
		if f.Category != "" && (sp.Category == nil || !strings.EqualFold(sp.Category.Name, f.Category)) {
			continue
		}
		out = append(out, sp)
	}
	return out
}
