package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/presentation"
	"github.com/zjrosen/gto/internal/registry/query"
)

var (
	historyAllBranches bool
	historyAllCommits  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [artifact]",
	Short: "Show the event history",
	Long: `Show registry events in display order: registrations,
deregistrations, stage assignments, deprecations and index
observations.

For any (artifact, stage) pair touched by a legacy simple-form tag the
assignment rows are collapsed into a single conflict marker, since
simple tags carry no sequence numbers to order them by.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		ctx := cmd.Context()
		_, st, err := assembleScope(ctx, scopeFromFlags(historyAllBranches, historyAllCommits))
		if err != nil {
			return err
		}
		recs, err := query.History(ctx, st, name)
		if err != nil {
			return err
		}
		f := presentation.NewFormatter(os.Stdout)
		if jsonOut {
			return f.JSON(recs)
		}
		return f.Text(presentation.HistoryTable(recs, presentation.NewGlyphs(cfg.Emojis)))
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyAllBranches, "all-branches", false,
		"scan commits on all branches for index entries")
	historyCmd.Flags().BoolVar(&historyAllCommits, "all-commits", false,
		"scan every commit for index entries")
	rootCmd.AddCommand(historyCmd)
}
