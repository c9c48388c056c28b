package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	root := t.TempDir()
	return NewWriter(root, "artifacts.yaml"), filepath.Join(root, "artifacts.yaml")
}

func TestWriter_AnnotateCreatesFile(t *testing.T) {
	w, path := newTestWriter(t)

	change, err := w.Annotate("model", Artifact{Type: "model", Path: "models/churn.pkl"}, false)
	require.NoError(t, err)
	require.Empty(t, change.Before)
	require.NotEmpty(t, change.After)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	idx, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, "model", idx["model"].Type)
	require.True(t, idx["model"].Virtual, "virtual defaults to true when not set")
}

func TestWriter_AnnotateMerges(t *testing.T) {
	w, _ := newTestWriter(t)

	_, err := w.Annotate("model", Artifact{Type: "model", Labels: []string{"ml"}}, false)
	require.NoError(t, err)

	// A later annotate with other fields keeps the earlier ones.
	_, err = w.Annotate("model", Artifact{Description: "churn model", Labels: []string{"churn", "ml"}}, false)
	require.NoError(t, err)

	idx, _, err := w.load()
	require.NoError(t, err)
	require.Equal(t, "model", idx["model"].Type)
	require.Equal(t, "churn model", idx["model"].Description)
	require.Equal(t, []string{"ml", "churn"}, idx["model"].Labels, "labels merge without duplicates")
}

func TestWriter_AnnotateSetVirtual(t *testing.T) {
	w, _ := newTestWriter(t)

	_, err := w.Annotate("model", Artifact{Virtual: false}, true)
	require.NoError(t, err)

	idx, _, err := w.load()
	require.NoError(t, err)
	require.False(t, idx["model"].Virtual)
}

func TestWriter_AnnotatePreservesCustomKeys(t *testing.T) {
	w, path := newTestWriter(t)
	seed := "model:\n  type: model\n  owner: ml-team\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	_, err := w.Annotate("model", Artifact{Description: "updated"}, false)
	require.NoError(t, err)

	idx, _, err := w.load()
	require.NoError(t, err)
	require.Equal(t, "ml-team", idx["model"].Custom["owner"], "unknown keys survive a rewrite")
}

func TestWriter_Remove(t *testing.T) {
	w, _ := newTestWriter(t)

	_, err := w.Annotate("model", Artifact{Type: "model"}, false)
	require.NoError(t, err)

	change, err := w.Remove("model")
	require.NoError(t, err)
	require.NotEqual(t, change.Before, change.After)

	idx, _, err := w.load()
	require.NoError(t, err)
	require.Empty(t, idx)
}

func TestWriter_RemoveMissing(t *testing.T) {
	w, _ := newTestWriter(t)

	_, err := w.Remove("ghost")
	require.Error(t, err)
}
