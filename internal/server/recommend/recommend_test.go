package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/shopgraph/internal/catalog"
	"github.com/systemshift/shopgraph/internal/server/graph"
)

// branchRepo stubs out the two ranking branches; the embedded interface
// panics on anything else the engine is not supposed to touch.
type branchRepo struct {
	graph.Repository
	personal    []catalog.ScoredProduct
	popular     []catalog.ScoredProduct
	personalErr error

	personalCalls int
}

func (r *branchRepo) RecommendationsFor(ctx context.Context, userID string) ([]catalog.ScoredProduct, error) {
	r.personalCalls++
	return r.personal, r.personalErr
}

func (r *branchRepo) PopularProducts(ctx context.Context) ([]catalog.ScoredProduct, error) {
	return r.popular, nil
}

func scored(id, name string, score float64) catalog.ScoredProduct {
	sp := catalog.ScoredProduct{Score: score}
	sp.ID = id
	sp.Name = name
	return sp
}

func newTestEngine(repo graph.Repository) *Engine {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(repo, log)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", DefaultLimit},
		{"abc", DefaultLimit},
		{"10", 10},
		{"1", 1},
		{"0", MinLimit},
		{"-5", MinLimit},
		{"50", 50},
		{"1000", MaxLimit},
	}
	for _, tt := range tests {
		t.Run("raw="+tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLimit(tt.raw))
		})
	}
}

func TestListMergesBranches(t *testing.T) {
	repo := &branchRepo{
		personal: []catalog.ScoredProduct{
			scored("p1", "Air Max", 3),
			scored("p2", "Desert Boot", 2),
		},
		popular: []catalog.ScoredProduct{
			scored("p2", "Desert Boot", 6), // same product, higher popularity score wins
			scored("p3", "Gazelle", 4),
		},
	}
	engine := newTestEngine(repo)

	out, err := engine.List(context.Background(), "u1", Options{})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "p2", out[0].ID)
	assert.Equal(t, float64(6), out[0].Score)
	assert.Equal(t, "p3", out[1].ID)
	assert.Equal(t, "p1", out[2].ID)
}

func TestListAnonymousSkipsPersonalBranch(t *testing.T) {
	repo := &branchRepo{
		personalErr: errors.New("must not be called"),
		popular:     []catalog.ScoredProduct{scored("p1", "Air Max", 5)},
	}
	engine := newTestEngine(repo)

	out, err := engine.List(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Zero(t, repo.personalCalls)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)
}

func TestListPersonalBranchErrorPropagates(t *testing.T) {
	repo := &branchRepo{personalErr: errors.New("db down")}
	engine := newTestEngine(repo)

	_, err := engine.List(context.Background(), "u1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "personalized branch")
}

func TestListAppliesFilterAfterUnion(t *testing.T) {
	nike := &catalog.Brand{ID: "b1", Name: "Nike"}
	p1 := scored("p1", "Air Max", 3)
	p1.Brand = nike
	p2 := scored("p2", "Desert Boot", 8)

	repo := &branchRepo{
		personal: []catalog.ScoredProduct{p1},
		popular:  []catalog.ScoredProduct{p2},
	}
	engine := newTestEngine(repo)

	out, err := engine.List(context.Background(), "u1", Options{
		Filter: catalog.Filter{Brand: "nike"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1, "filter applies to both branches uniformly")
	assert.Equal(t, "p1", out[0].ID)
}

func TestListFilterOnMissingBrandExcludes(t *testing.T) {
	repo := &branchRepo{
		popular: []catalog.ScoredProduct{scored("p1", "Air Max", 5)}, // no brand link
	}
	engine := newTestEngine(repo)

	out, err := engine.List(context.Background(), "", Options{
		Filter: catalog.Filter{Brand: "Nike"},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListTruncatesToLimit(t *testing.T) {
	var popular []catalog.ScoredProduct
	for i := 0; i < 30; i++ {
		popular = append(popular, scored(string(rune('a'+i)), "product", float64(30-i)))
	}
	repo := &branchRepo{popular: popular}
	engine := newTestEngine(repo)

	out, err := engine.List(context.Background(), "", Options{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, out, 5)

	// zero means default, absurd values are clamped
	out, err = engine.List(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Len(t, out, DefaultLimit)

	out, err = engine.List(context.Background(), "", Options{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, out, 30)
}

func TestListLogsBranchSizes(t *testing.T) {
	repo := &branchRepo{
		personal: []catalog.ScoredProduct{scored("p1", "Air Max", 3)},
		popular:  []catalog.ScoredProduct{scored("p2", "Desert Boot", 5)},
	}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	engine := New(repo, log)

	_, err := engine.List(context.Background(), "u1", Options{})
	require.NoError(t, err)

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, 1, entry.Data["personalized"])
	assert.Equal(t, 1, entry.Data["popular"])
	assert.Equal(t, 2, entry.Data["returned"])
}

func TestMergeKeepsInsertionOrderOnTies(t *testing.T) {
	out := merge(
		[]catalog.ScoredProduct{scored("p1", "a", 2)},
		[]catalog.ScoredProduct{scored("p2", "b", 2), scored("p1", "a", 1)},
	)
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ID)
	assert.Equal(t, float64(2), out[0].Score, "lower popularity score must not overwrite")
	assert.Equal(t, "p2", out[1].ID)
}
