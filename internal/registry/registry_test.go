package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/mutate"
	"github.com/zjrosen/gto/internal/registry/state"
	"github.com/zjrosen/gto/internal/testutil"
)

var headScope = collector.Scope{Kind: collector.ScopeHead}

func newEngine(repo *testutil.FakeRepo, cfg config.Config) *Registry {
	return NewWithExecutor(repo, cfg)
}

// plan-and-apply helper: assemble, run the mutation, apply the plan.
func mutateAndApply(t *testing.T, reg *Registry, fn func(*state.Registry) (mutate.Plan, error)) {
	t.Helper()
	ctx := context.Background()
	st, err := reg.Assemble(ctx, headScope)
	require.NoError(t, err)
	plan, err := fn(st)
	require.NoError(t, err)
	require.NoError(t, reg.Apply(ctx, plan))
}

// ===========================================================================
// Replay equivalence: a sequence of mutations equals a fresh assemble
// over the resulting repository
// ===========================================================================

func TestReplayEquivalence(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	repo.AddCommit("c2", nil)
	cfg := config.Defaults()
	reg := newEngine(repo, cfg)
	ctx := context.Background()

	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Register(ctx, st, "rf", "c1", mutate.RegisterOptions{})
	})
	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Assign(ctx, st, "rf", "prod", mutate.AssignOptions{Version: "v1"})
	})
	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Register(ctx, st, "rf", "c2", mutate.RegisterOptions{})
	})
	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Unassign(ctx, st, "rf", "prod", false)
	})

	require.ElementsMatch(t,
		[]string{"rf@v1", "rf#prod#1", "rf@v2", "rf#prod!#2"},
		repo.TagNames(),
	)

	st, err := reg.Assemble(ctx, headScope)
	require.NoError(t, err)

	art := st.Find("rf")
	require.NotNil(t, art)
	require.Len(t, art.RegisteredVersions(), 2)
	require.Empty(t, art.CurrentStages["prod"], "prod was unassigned last")

	// Assembling twice yields identical state (determinism).
	again, err := reg.Assemble(ctx, headScope)
	require.NoError(t, err)
	require.Equal(t, st.Names(), again.Names())
	require.Equal(t, art.Records(), again.Find("rf").Records())
}

// ===========================================================================
// Apply: rollback on mid-plan failure
// ===========================================================================

func TestApply_RollsBackPartialPlan(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	repo.AddTag("rf#prod#1", "c1") // will collide with the second write
	cfg := config.Defaults()
	reg := newEngine(repo, cfg)

	plan := mutate.Plan{Creates: []mutate.TagWrite{
		{Name: "rf@v1", Message: "m", Target: "c1"},
		{Name: "rf#prod#1", Message: "m", Target: "c1"}, // duplicate
	}}
	err := reg.Apply(context.Background(), plan)
	require.Error(t, err)
	require.Equal(t, errs.KindConflict, errs.KindOf(err))

	require.Equal(t, []string{"rf#prod#1"}, repo.TagNames(),
		"the first tag of the failed plan was rolled back")
}

// ===========================================================================
// Apply: cancellation before any write
// ===========================================================================

func TestApply_Cancelled(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	reg := newEngine(repo, config.Defaults())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reg.Apply(ctx, mutate.Plan{Creates: []mutate.TagWrite{{Name: "rf@v1", Target: "c1"}}})
	require.Equal(t, errs.KindCancelled, errs.KindOf(err))
	require.Empty(t, repo.TagNames(), "no partial tags on cancellation")
}

// ===========================================================================
// Tag deletion rewrites history (lifecycle)
// ===========================================================================

func TestDeleteRewritesHistory(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	cfg := config.Defaults()
	reg := newEngine(repo, cfg)
	ctx := context.Background()

	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Register(ctx, st, "rf", "c1", mutate.RegisterOptions{})
	})
	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Assign(ctx, st, "rf", "prod", mutate.AssignOptions{Version: "v1"})
	})
	mutateAndApply(t, reg, func(st *state.Registry) (mutate.Plan, error) {
		return reg.Mutator().Deregister(ctx, st, "rf", "v1", true)
	})

	require.Empty(t, repo.TagNames(), "delete plan removed every tag touching v1")

	st, err := reg.Assemble(ctx, headScope)
	require.NoError(t, err)
	require.Nil(t, st.Find("rf"), "state re-assembles as if the tags never existed")
}
