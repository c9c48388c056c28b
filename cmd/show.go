package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/presentation"
	"github.com/zjrosen/gto/internal/registry/query"
	"github.com/zjrosen/gto/internal/watcher"
)

var (
	showAll         bool
	showWatch       bool
	showAllBranches bool
	showAllCommits  bool
)

var showCmd = &cobra.Command{
	Use:   "show [artifact]",
	Short: "Show the registry state",
	Long: `Show all artifacts with their latest version and current stage
assignments, or the versions of a single artifact.

Examples:
  # Overview of every artifact
  gto show

  # Versions of one artifact, including deregistered ones
  gto show model --all

  # Re-render whenever tags or the index change
  gto show --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if err := runShow(cmd.Context(), name); err != nil {
			return err
		}
		if showWatch {
			return watchShow(cmd.Context(), name)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showAll, "all", false,
		"include deregistered and discovered versions")
	showCmd.Flags().BoolVar(&showWatch, "watch", false,
		"keep running and re-render on repository changes")
	showCmd.Flags().BoolVar(&showAllBranches, "all-branches", false,
		"scan commits on all branches for index entries")
	showCmd.Flags().BoolVar(&showAllCommits, "all-commits", false,
		"scan every commit for index entries")
	rootCmd.AddCommand(showCmd)
}

func runShow(ctx context.Context, name string) error {
	scope := scopeFromFlags(showAllBranches, showAllCommits)
	scope.IncludeWorkingTree = true
	_, st, err := assembleScope(ctx, scope)
	if err != nil {
		return err
	}

	f := presentation.NewFormatter(os.Stdout)
	glyphs := presentation.NewGlyphs(cfg.Emojis)

	if name == "" {
		rows, err := query.Show(ctx, st)
		if err != nil {
			return err
		}
		if jsonOut {
			return f.JSON(rows)
		}
		return f.Text(presentation.RegistryTable(rows, glyphs))
	}

	rows, err := query.ShowArtifact(st, name, showAll)
	if err != nil {
		return err
	}
	if jsonOut {
		return f.JSON(rows)
	}
	return f.Text(presentation.VersionsTable(rows, glyphs))
}

// watchShow re-renders on every debounced repository change until the
// context is cancelled.
func watchShow(ctx context.Context, name string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	root, err := reg.Executor().RepoRoot()
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.DefaultConfig(root, cfg.IndexPath()))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if err := runShow(ctx, name); err != nil {
				return err
			}
		}
	}
}
