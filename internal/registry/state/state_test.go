package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gto/internal/config"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/event"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// tagEvent builds a tag-derived event n minutes after base.
func tagEvent(kind event.Kind, artifact, ver, stage string, seq, minutes int, ref, commit string) event.Event {
	return event.Event{
		Kind:      kind,
		Artifact:  artifact,
		Version:   ver,
		Stage:     stage,
		Seq:       seq,
		Ref:       ref,
		Commit:    commit,
		Author:    "Test Author",
		CreatedAt: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func assemble(t *testing.T, cfg config.Config, events ...event.Event) *Registry {
	t.Helper()
	stream := &collector.Stream{Events: events, Simple: map[string]bool{}}
	for _, e := range events {
		if e.Simple() {
			stream.Simple[collector.PairKey(e.Artifact, e.Stage)] = true
		}
	}
	return Assemble(stream, cfg)
}

// ===========================================================================
// Register then assign
// ===========================================================================

func TestAssemble_RegisterThenAssign(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 2, "rf#prod#1", "c1"),
	)

	art := reg.Find("rf")
	require.NotNil(t, art, "artifact rf should exist")

	v1 := art.FindVersion("v1")
	require.NotNil(t, v1, "version v1 should exist")
	require.True(t, v1.Registered, "v1 should be registered")
	require.Equal(t, "c1", v1.Commit)

	refs := art.CurrentStages["prod"]
	require.Len(t, refs, 1, "prod should have one holder")
	require.Equal(t, "v1", refs[0].Version, "prod should point at v1")
	require.Equal(t, []string{"prod"}, v1.Stages)
}

// ===========================================================================
// Re-assign then unassign
// ===========================================================================

func TestAssemble_ReassignThenUnassign(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 2, "rf#prod#1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 2, 3, "rf#prod#2", "c1"),
		tagEvent(event.KindUnassignment, "rf", "", "prod", 3, 4, "rf#prod!#3", "c1"),
	)

	art := reg.Find("rf")
	require.Empty(t, art.CurrentStages["prod"], "prod should be unassigned after rf#prod!#3")
	require.Len(t, art.Records(), 4, "all events stay in history")
}

// ===========================================================================
// Conflict: registering a taken version
// ===========================================================================

func TestAssemble_DuplicateRegistrationIsConflict(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 5, "rf@v1-recreated", "c9"),
	)

	art := reg.Find("rf")
	v1 := art.FindVersion("v1")
	require.Equal(t, "c1", v1.Commit, "the earlier registration wins")

	recs := art.Records()
	require.False(t, recs[0].Conflict, "first registration is clean")
	require.True(t, recs[1].Conflict, "second registration is marked as conflict")
}

// ===========================================================================
// Deregistration and orphan markers
// ===========================================================================

func TestAssemble_Deregistration(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindDeregistration, "rf", "v1", "", event.SeqAbsent, 2, "rf@v1!", "c1"),
	)

	v1 := reg.Find("rf").FindVersion("v1")
	require.False(t, v1.Registered)
	require.True(t, v1.Deregistered)
}

func TestAssemble_DeregisterUnknownVersionIsOrphan(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindDeregistration, "rf", "v7", "", event.SeqAbsent, 1, "rf@v7!", "c1"),
	)

	recs := reg.Find("rf").Records()
	require.Len(t, recs, 1)
	require.True(t, recs[0].Orphan, "deregistering an unknown version is an orphan event")
}

// ===========================================================================
// Deprecation reset
// ===========================================================================

func TestAssemble_DeprecationResetByRegistration(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindDeprecation, "rf", "", "", event.SeqAbsent, 2, "rf@deprecated", "c1"),
		tagEvent(event.KindRegistration, "rf", "v2", "", event.SeqAbsent, 3, "rf@v2", "c2"),
	)

	require.False(t, reg.Find("rf").Deprecated, "a later registration lifts the deprecation")
}

func TestAssemble_DeprecationResetByAssignment(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindDeprecation, "rf", "", "", event.SeqAbsent, 2, "rf@deprecated", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 3, "rf#prod#1", "c1"),
	)

	require.False(t, reg.Find("rf").Deprecated, "a later assignment lifts the deprecation")
}

func TestAssemble_DeprecationSticks(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindDeprecation, "rf", "", "", event.SeqAbsent, 2, "rf@deprecated", "c1"),
	)

	require.True(t, reg.Find("rf").Deprecated)
}

// ===========================================================================
// Stage currency follows the greatest seq across versions
// ===========================================================================

func TestAssemble_StageCurrencyAcrossVersions(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindRegistration, "rf", "v2", "", event.SeqAbsent, 2, "rf@v2", "c2"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 3, "rf#prod#1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 2, 4, "rf#prod#2", "c2"),
	)

	refs := reg.Find("rf").CurrentStages["prod"]
	require.Len(t, refs, 1)
	require.Equal(t, "v2", refs[0].Version, "the later assignment moves prod to v2")
}

// ===========================================================================
// Stage tag on a commit without a version (orphan placeholder)
// ===========================================================================

func TestAssemble_AssignmentWithoutVersionIsOrphan(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 1, "rf#prod#1", "deadbeef00"),
	)

	art := reg.Find("rf")
	recs := art.Records()
	require.True(t, recs[0].Orphan, "assignment with no version resolves to an orphan placeholder")

	refs := art.CurrentStages["prod"]
	require.Len(t, refs, 1)
	require.Equal(t, "deadbee", refs[0].Version, "placeholder version is the short sha")
	require.True(t, art.FindVersion("deadbee").Discovered)
}

// ===========================================================================
// Simple-form tags mark the pair
// ===========================================================================

func TestAssemble_SimpleFormPairRecorded(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", event.SeqAbsent, 2, "rf#prod", "c1"),
	)

	require.True(t, reg.SimplePair("rf", "prod"))
	require.True(t, reg.Find("rf").SimpleStages()["prod"])

	refs := reg.Find("rf").CurrentStages["prod"]
	require.Len(t, refs, 1)
	require.Equal(t, "v1", refs[0].Version, "currency still resolves through the tag's commit")
}

// ===========================================================================
// Kanban: one stage per version
// ===========================================================================

func TestAssemble_KanbanKeepsLatestStagePerVersion(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kanban = true

	reg := assemble(t, cfg,
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "staging", 1, 2, "rf#staging#1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 2, 3, "rf#prod#2", "c1"),
	)

	art := reg.Find("rf")
	require.Empty(t, art.CurrentStages["staging"], "assigning prod displaces staging on v1")
	require.Len(t, art.CurrentStages["prod"], 1)
	require.Equal(t, []string{"prod"}, art.FindVersion("v1").Stages)
}

// ===========================================================================
// Multi-version-per-stage
// ===========================================================================

func TestAssemble_MultiVersionPerStage(t *testing.T) {
	cfg := config.Defaults()
	cfg.VersionsPerStage = -1

	reg := assemble(t, cfg,
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindRegistration, "rf", "v2", "", event.SeqAbsent, 2, "rf@v2", "c2"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 3, "rf#prod#1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 2, 4, "rf#prod#2", "c2"),
	)

	refs := reg.Find("rf").CurrentStages["prod"]
	require.Len(t, refs, 2, "both versions hold prod concurrently")
	require.Equal(t, "v2", refs[0].Version, "newest holder comes first under by_time")
	require.Equal(t, "v1", refs[1].Version)
}

func TestAssemble_MultiVersionUnassignOneHolder(t *testing.T) {
	cfg := config.Defaults()
	cfg.VersionsPerStage = -1

	reg := assemble(t, cfg,
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindRegistration, "rf", "v2", "", event.SeqAbsent, 2, "rf@v2", "c2"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 3, "rf#prod#1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 2, 4, "rf#prod#2", "c2"),
		tagEvent(event.KindUnassignment, "rf", "", "prod", 3, 5, "rf#prod!#3", "c2"),
	)

	refs := reg.Find("rf").CurrentStages["prod"]
	require.Len(t, refs, 1, "unassigning v2 leaves v1 holding prod")
	require.Equal(t, "v1", refs[0].Version)
}

// ===========================================================================
// Determinism: assembling the same stream twice gives identical state
// ===========================================================================

func TestAssemble_Deterministic(t *testing.T) {
	events := []event.Event{
		tagEvent(event.KindRegistration, "rf", "v1", "", event.SeqAbsent, 1, "rf@v1", "c1"),
		tagEvent(event.KindRegistration, "ds", "v1", "", event.SeqAbsent, 2, "ds@v1", "c1"),
		tagEvent(event.KindAssignment, "rf", "", "prod", 1, 3, "rf#prod#1", "c1"),
		tagEvent(event.KindDeprecation, "ds", "", "", event.SeqAbsent, 4, "ds@deprecated", "c1"),
	}

	a := assemble(t, config.Defaults(), events...)
	b := assemble(t, config.Defaults(), events...)

	require.Equal(t, a.Names(), b.Names())
	for _, name := range a.Names() {
		require.Equal(t, a.Find(name).Records(), b.Find(name).Records(), "records for %s", name)
		require.Equal(t, a.Find(name).CurrentStages, b.Find(name).CurrentStages, "stages for %s", name)
		require.Equal(t, a.Find(name).Deprecated, b.Find(name).Deprecated)
	}
}

// ===========================================================================
// Commit events surface annotated-but-unregistered artifacts
// ===========================================================================

func TestAssemble_CommitEventCreatesArtifact(t *testing.T) {
	reg := assemble(t, config.Defaults(),
		tagEvent(event.KindCommit, "annotated-only", "", "", event.SeqAbsent, 1, "c1", "c1"),
	)

	art := reg.Find("annotated-only")
	require.NotNil(t, art, "index rows surface artifacts without tags")
	require.Empty(t, art.Versions)
}
