package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/registry"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/mutate"
	verpkg "github.com/zjrosen/gto/internal/registry/version"
)

var (
	registerVersion string
	registerRef     string
	registerBump    string
	registerForce   bool
)

var registerCmd = &cobra.Command{
	Use:   "register <artifact>",
	Short: "Register a new artifact version",
	Long: `Register a version of an artifact at a commit (default HEAD) by
creating a tag like model@v1.

When --version is omitted the next version is computed from the
greatest existing one; with the semver convention --bump picks the part
to increment.

Examples:
  gto register model
  gto register model --version v3
  gto register model --ref abc1234 --bump minor`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, st, err := assembleScope(ctx, collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		plan, err := reg.Mutator().Register(ctx, st, args[0], registerRef, mutate.RegisterOptions{
			Version: registerVersion,
			Bump:    verpkg.Part(registerBump),
			Force:   registerForce,
		})
		if err != nil {
			return err
		}
		return applyAndReport(ctx, reg, plan)
	},
}

var deregisterDelete bool

var deregisterCmd = &cobra.Command{
	Use:   "deregister <artifact> <version>",
	Short: "Deregister an artifact version",
	Long: `Mark a registered version as deregistered by creating a tag like
model@v1!. With --delete the registration tag and every stage tag
touching the version are removed instead, rewriting history as if the
version never existed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, st, err := assembleScope(ctx, collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		plan, err := reg.Mutator().Deregister(ctx, st, args[0], args[1], deregisterDelete)
		if err != nil {
			return err
		}
		return applyAndReport(ctx, reg, plan)
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerVersion, "version", "",
		"version to register (default: next after the greatest)")
	registerCmd.Flags().StringVar(&registerRef, "ref", "",
		"commit to register at (default: HEAD)")
	registerCmd.Flags().StringVar(&registerBump, "bump", "",
		"semver part to bump: major, minor or patch")
	registerCmd.Flags().BoolVar(&registerForce, "force", false,
		"register even while the artifact is deprecated")
	deregisterCmd.Flags().BoolVar(&deregisterDelete, "delete", false,
		"delete the version's tags instead of writing a deregistration tag")
	rootCmd.AddCommand(registerCmd, deregisterCmd)
}

// applyAndReport executes the plan and prints what changed.
func applyAndReport(ctx context.Context, reg *registry.Registry, plan mutate.Plan) error {
	if plan.Empty() {
		fmt.Println("nothing to do")
		return nil
	}
	if err := reg.Apply(ctx, plan); err != nil {
		return err
	}
	for _, w := range plan.Creates {
		fmt.Printf("created tag %s\n", w.Name)
	}
	for _, name := range plan.Deletes {
		fmt.Printf("deleted tag %s\n", name)
	}
	return nil
}
