package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/version"
)

// ===========================================================================
// Parse: canonical grammars
// ===========================================================================

func TestParse_Grammars(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		conv version.Convention
		want *event.Event
	}{
		{
			name: "registration numbered",
			tag:  "model@v1",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindRegistration, Artifact: "model", Version: "v1", Seq: event.SeqAbsent, Ref: "model@v1"},
		},
		{
			name: "registration semver",
			tag:  "model@v1.2.3",
			conv: version.SemVer,
			want: &event.Event{Kind: event.KindRegistration, Artifact: "model", Version: "v1.2.3", Seq: event.SeqAbsent, Ref: "model@v1.2.3"},
		},
		{
			name: "deregistration",
			tag:  "model@v1!",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindDeregistration, Artifact: "model", Version: "v1", Seq: event.SeqAbsent, Ref: "model@v1!"},
		},
		{
			name: "deprecation simple",
			tag:  "model@deprecated",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindDeprecation, Artifact: "model", Seq: event.SeqAbsent, Ref: "model@deprecated"},
		},
		{
			name: "deprecation with seq",
			tag:  "model@deprecated#2",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindDeprecation, Artifact: "model", Seq: 2, Ref: "model@deprecated#2"},
		},
		{
			name: "assignment incremental",
			tag:  "model#prod#1",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindAssignment, Artifact: "model", Stage: "prod", Seq: 1, Ref: "model#prod#1"},
		},
		{
			name: "assignment simple",
			tag:  "model#prod",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindAssignment, Artifact: "model", Stage: "prod", Seq: event.SeqAbsent, Ref: "model#prod"},
		},
		{
			name: "unassignment incremental",
			tag:  "model#prod!#3",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindUnassignment, Artifact: "model", Stage: "prod", Seq: 3, Ref: "model#prod!#3"},
		},
		{
			name: "unassignment simple",
			tag:  "model#prod!",
			conv: version.Numbers,
			want: &event.Event{Kind: event.KindUnassignment, Artifact: "model", Stage: "prod", Seq: event.SeqAbsent, Ref: "model#prod!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.tag, tt.conv)
			require.Equal(t, tt.want, got)
		})
	}
}

// ===========================================================================
// Parse: foreign tags are ignored, not errors
// ===========================================================================

func TestParse_ForeignTags(t *testing.T) {
	foreign := []string{
		"v1.2.3",          // no artifact name
		"release-2024",    // no sentinel
		"model@",          // empty version slot
		"model@banana",    // not a version
		"model@v1.2.3",    // semver under numbers convention
		"@v1",             // empty name
		"#prod",           // empty name
		"model#",          // empty stage
		"model#prod#01",   // leading zero seq
		"model#prod#x",    // non-numeric seq
		"model#pr od#1",   // whitespace in stage
		"model@deprecated#", // empty seq
	}
	for _, tag := range foreign {
		require.Nil(t, Parse(tag, version.Numbers), "tag %q should be ignored", tag)
	}
}

func TestParse_LeftmostSentinelClassifies(t *testing.T) {
	// '@' before '#' makes it a version-family tag even though '#'
	// appears later.
	e := Parse("model@deprecated#3", version.Numbers)
	require.NotNil(t, e)
	require.Equal(t, event.KindDeprecation, e.Kind)

	// '#' first makes it a stage tag even with a later '@' (invalid
	// stage name, so it is dropped).
	require.Nil(t, Parse("model#st@ge", version.Numbers))
}

// ===========================================================================
// Format
// ===========================================================================

func TestFormat_RejectsInvalidInputs(t *testing.T) {
	_, err := Format(event.Event{Kind: event.KindRegistration, Artifact: "bad name", Version: "v1"}, version.Numbers)
	require.Error(t, err, "whitespace in artifact name")

	_, err = Format(event.Event{Kind: event.KindRegistration, Artifact: "model", Version: "v1.0"}, version.Numbers)
	require.Error(t, err, "semver version under numbers convention")

	_, err = Format(event.Event{Kind: event.KindCommit, Artifact: "model"}, version.Numbers)
	require.Error(t, err, "synthetic events have no tag form")
}

func TestFormat_IncrementalSeqRendering(t *testing.T) {
	name, err := Format(event.Event{Kind: event.KindAssignment, Artifact: "model", Stage: "prod", Seq: 12}, version.Numbers)
	require.NoError(t, err)
	require.Equal(t, "model#prod#12", name)

	name, err = Format(event.Event{Kind: event.KindUnassignment, Artifact: "model", Stage: "prod", Seq: 13}, version.Numbers)
	require.NoError(t, err)
	require.Equal(t, "model#prod!#13", name)
}

// ===========================================================================
// Property: parse(format(e)) == e for mutator-shaped events
// ===========================================================================

func nameGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][a-z0-9_.-]{0,15}`)
}

func TestRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		conv := rapid.SampledFrom([]version.Convention{version.Numbers, version.SemVer}).Draw(rt, "conv")

		var ver string
		if conv == version.Numbers {
			ver = "v" + rapid.StringMatching(`[1-9][0-9]{0,3}`).Draw(rt, "num")
		} else {
			ver = "v" + rapid.StringMatching(`(0|[1-9][0-9]{0,2})\.(0|[1-9][0-9]{0,2})\.(0|[1-9][0-9]{0,2})`).Draw(rt, "semver")
		}

		kind := rapid.SampledFrom([]event.Kind{
			event.KindRegistration,
			event.KindDeregistration,
			event.KindAssignment,
			event.KindUnassignment,
			event.KindDeprecation,
		}).Draw(rt, "kind")

		e := event.Event{Kind: kind, Artifact: nameGen().Draw(rt, "artifact"), Seq: event.SeqAbsent}
		switch kind {
		case event.KindRegistration, event.KindDeregistration:
			e.Version = ver
		case event.KindAssignment, event.KindUnassignment:
			e.Stage = nameGen().Draw(rt, "stage")
			e.Seq = rapid.IntRange(1, 9999).Draw(rt, "seq")
		case event.KindDeprecation:
			if rapid.Bool().Draw(rt, "withSeq") {
				e.Seq = rapid.IntRange(1, 9999).Draw(rt, "depseq")
			}
		}

		name, err := Format(e, conv)
		require.NoError(rt, err)

		parsed := Parse(name, conv)
		require.NotNil(rt, parsed, "formatted tag %q must parse", name)
		e.Ref = name
		require.Equal(rt, &e, parsed)
	})
}
