package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/mutate"
	verpkg "github.com/zjrosen/gto/internal/registry/version"
)

var (
	assignVersion string
	assignRef     string
	assignBump    string
	assignForce   bool
)

var assignCmd = &cobra.Command{
	Use:   "assign <artifact> <stage>",
	Short: "Assign a stage to an artifact version",
	Long: `Point a lifecycle stage at a version by creating a tag like
model#prod#1. Exactly one of --version or --ref selects the target;
with --ref and no version registered at that commit, a registration is
planned first and both tags are written together.

Examples:
  gto assign model prod --version v1
  gto assign model staging --ref HEAD`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, st, err := assembleScope(ctx, collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		plan, err := reg.Mutator().Assign(ctx, st, args[0], args[1], mutate.AssignOptions{
			Version: assignVersion,
			Ref:     assignRef,
			Bump:    verpkg.Part(assignBump),
			Force:   assignForce,
		})
		if err != nil {
			return err
		}
		return applyAndReport(ctx, reg, plan)
	},
}

var unassignDelete bool

var unassignCmd = &cobra.Command{
	Use:   "unassign <artifact> <stage>",
	Short: "Unassign a stage from an artifact",
	Long: `Withdraw a stage by creating a tag like model#prod!#2. With
--delete every stage tag for the pair is removed instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, st, err := assembleScope(ctx, collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		plan, err := reg.Mutator().Unassign(ctx, st, args[0], args[1], unassignDelete)
		if err != nil {
			return err
		}
		return applyAndReport(ctx, reg, plan)
	},
}

var deprecateCmd = &cobra.Command{
	Use:   "deprecate <artifact>",
	Short: "Deprecate an artifact",
	Long: `Mark the whole artifact as deprecated with a tag like
model@deprecated. Deprecation is lifted again by any later registration
or stage assignment. Deprecating an already deprecated artifact does
nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, st, err := assembleScope(ctx, collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		plan, err := reg.Mutator().Deprecate(ctx, st, args[0])
		if err != nil {
			return err
		}
		return applyAndReport(ctx, reg, plan)
	},
}

func init() {
	assignCmd.Flags().StringVar(&assignVersion, "version", "",
		"existing version to assign the stage to")
	assignCmd.Flags().StringVar(&assignRef, "ref", "",
		"commit to assign the stage at; registers a version if needed")
	assignCmd.Flags().StringVar(&assignBump, "bump", "",
		"semver part to bump for an implicit registration")
	assignCmd.Flags().BoolVar(&assignForce, "force", false,
		"assign even while the artifact is deprecated")
	unassignCmd.Flags().BoolVar(&unassignDelete, "delete", false,
		"delete the pair's stage tags instead of writing an unassignment tag")
	rootCmd.AddCommand(assignCmd, unassignCmd, deprecateCmd)
}
