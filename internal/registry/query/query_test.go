package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/index"
	"github.com/zjrosen/gto/internal/registry/state"
	"github.com/zjrosen/gto/internal/testutil"
)

func assembleRepo(t *testing.T, repo *testutil.FakeRepo, cfg config.Config) *state.Registry {
	t.Helper()
	reader := index.NewReader(repo, cfg.IndexPath())
	stream, err := collector.New(repo, reader, cfg.Convention()).Collect(
		context.Background(), collector.Scope{Kind: collector.ScopeHead})
	require.NoError(t, err)
	return state.Assemble(stream, cfg)
}

// seededRepo seeds a repo with rf v1 registered and assigned to prod.
func seededRepo() *testutil.FakeRepo {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", map[string]string{
		"artifacts.yaml": "rf:\n  type: model\n  path: models/rf.pkl\n  description: random forest\n",
	})
	repo.AddTag("rf@v1", "c1")
	repo.AddTag("rf#prod#1", "c1")
	return repo
}

// ===========================================================================
// Show
// ===========================================================================

func TestShow_Overview(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())

	rows, err := Show(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "rf", rows[0].Name)
	require.Equal(t, "v1", rows[0].Latest)
	require.Equal(t, "v1", rows[0].Stages["prod"])
	require.Equal(t, "model", rows[0].Type)
}

func TestShowArtifact_FiltersDeregistered(t *testing.T) {
	repo := seededRepo()
	repo.AddCommit("c2", nil)
	repo.AddTag("rf@v2", "c2")
	repo.AddTag("rf@v2!", "c2")
	st := assembleRepo(t, repo, config.Defaults())

	rows, err := ShowArtifact(st, "rf", false)
	require.NoError(t, err)
	require.Len(t, rows, 1, "deregistered v2 is hidden by default")

	rows, err = ShowArtifact(st, "rf", true)
	require.NoError(t, err)
	require.Len(t, rows, 2, "--all surfaces it")

	_, err = ShowArtifact(st, "ghost", false)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// ===========================================================================
// Latest, time vs semver sort
// ===========================================================================

func TestLatest_SortByTimeVsVersion(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	// v10 is registered before v2: greatest by version, older by time.
	repo.AddTagAt("rf@v10", "c1", testutil.Epoch.Add(10*time.Minute))
	repo.AddTagAt("rf@v2", "c1", testutil.Epoch.Add(20*time.Minute))

	byTime := config.Defaults()
	st := assembleRepo(t, repo, byTime)
	v, err := Latest(st, "rf")
	require.NoError(t, err)
	require.Equal(t, "v2", v.Version, "by_time picks the newest registration")

	bySemver := config.Defaults()
	bySemver.Sort = string(config.SortBySemVer)
	st = assembleRepo(t, repo, bySemver)
	v, err = Latest(st, "rf")
	require.NoError(t, err)
	require.Equal(t, "v10", v.Version, "by_semver picks the greatest version")
}

func TestLatest_SkipsDeregistered(t *testing.T) {
	repo := seededRepo()
	repo.AddCommit("c2", nil)
	repo.AddTag("rf@v2", "c2")
	repo.AddTag("rf@v2!", "c2")
	st := assembleRepo(t, repo, config.Defaults())

	v, err := Latest(st, "rf")
	require.NoError(t, err)
	require.Equal(t, "v1", v.Version)
}

func TestLatest_NoVersions(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", map[string]string{"artifacts.yaml": "rf:\n"})
	st := assembleRepo(t, repo, config.Defaults())

	_, err := Latest(st, "rf")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// ===========================================================================
// Which
// ===========================================================================

func TestWhich(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())

	refs, err := Which(st, "rf", "prod")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "v1", refs[0].Version)

	refs, err = Which(st, "rf", "staging")
	require.NoError(t, err)
	require.Empty(t, refs, "unassigned stage yields nil, not an error")
}

func TestWhich_AfterUnassign(t *testing.T) {
	repo := seededRepo()
	repo.AddTag("rf#prod#2", "c1")
	repo.AddTag("rf#prod!#3", "c1")
	st := assembleRepo(t, repo, config.Defaults())

	refs, err := Which(st, "rf", "prod")
	require.NoError(t, err)
	require.Empty(t, refs)
}

// ===========================================================================
// History ordering and simple-form degradation
// ===========================================================================

func TestHistory_DisplayOrder(t *testing.T) {
	repo := seededRepo()
	repo.AddTag("rf#prod#2", "c1")
	st := assembleRepo(t, repo, config.Defaults())

	recs, err := History(context.Background(), st, "rf")
	require.NoError(t, err)
	for i := 1; i < len(recs); i++ {
		require.False(t, recs[i].Before(recs[i-1].Event), "history must be ascending")
	}
}

func TestHistory_SimpleFormDegrades(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	repo.AddTag("rf@v1", "c1")
	repo.AddTag("rf#prod", "c1") // legacy simple form

	st := assembleRepo(t, repo, config.Defaults())

	recs, err := History(context.Background(), st, "rf")
	require.NoError(t, err)

	var stageRecs []state.Record
	for _, rec := range recs {
		if rec.Stage == "prod" {
			stageRecs = append(stageRecs, rec)
		}
	}
	require.Len(t, stageRecs, 1, "assignment rows collapse into one marker")
	require.True(t, stageRecs[0].Conflict, "the marker is a conflict entry")

	// Currency still works: the tag points at the commit holding v1.
	refs, err := Which(st, "rf", "prod")
	require.NoError(t, err)
	require.Equal(t, "v1", refs[0].Version)
}

func TestHistory_UnknownArtifact(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())
	_, err := History(context.Background(), st, "ghost")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// ===========================================================================
// Describe
// ===========================================================================

func TestDescribe(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())

	meta, err := Describe(st, "rf")
	require.NoError(t, err)
	require.Equal(t, "model", meta.Type)
	require.Equal(t, "models/rf.pkl", meta.Path)
	require.Equal(t, "random forest", meta.Description)
}

func TestDescribe_NoIndexEntry(t *testing.T) {
	repo := testutil.NewFakeRepo()
	repo.AddCommit("c1", nil)
	repo.AddTag("rf@v1", "c1")
	st := assembleRepo(t, repo, config.Defaults())

	_, err := Describe(st, "rf")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// ===========================================================================
// CheckRef
// ===========================================================================

func TestCheckRef(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())

	rec, err := CheckRef(st, "rf@v1")
	require.NoError(t, err)
	require.Equal(t, event.KindRegistration, rec.Kind)
	require.Equal(t, "v1", rec.Version)
	require.Equal(t, "c1", rec.Commit)

	rec, err = CheckRef(st, "rf#prod#1")
	require.NoError(t, err)
	require.Equal(t, event.KindAssignment, rec.Kind)
	require.Equal(t, "prod", rec.Stage)

	_, err = CheckRef(st, "not-a-registry-tag")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = CheckRef(st, "rf@v9")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err), "well-formed but absent")
}

// ===========================================================================
// Stages
// ===========================================================================

func TestStages(t *testing.T) {
	repo := seededRepo()
	repo.AddCommit("c2", nil)
	repo.AddTag("ds@v1", "c2")
	repo.AddTag("ds#dev#1", "c2")
	st := assembleRepo(t, repo, config.Defaults())

	require.Equal(t, []string{"dev", "prod"}, st.Stages())
}

// ===========================================================================
// Cancellation
// ===========================================================================

func TestShow_Cancelled(t *testing.T) {
	st := assembleRepo(t, seededRepo(), config.Defaults())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Show(ctx, st)
	require.Equal(t, errs.KindCancelled, errs.KindOf(err))
}
