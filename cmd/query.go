package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/presentation"
	"github.com/zjrosen/gto/internal/registry/codec"
	"github.com/zjrosen/gto/internal/registry/collector"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/query"
)

var latestCmd = &cobra.Command{
	Use:   "latest <artifact>",
	Short: "Print the greatest registered version of an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := assembleScope(cmd.Context(), collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		v, err := query.Latest(st, args[0])
		if err != nil {
			return err
		}
		fmt.Println(v.Version)
		return nil
	},
}

var whichCmd = &cobra.Command{
	Use:   "which <artifact> <stage>",
	Short: "Print the version a stage currently points to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := assembleScope(cmd.Context(), collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		refs, err := query.Which(st, args[0], args[1])
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return errs.New(errs.KindNotFound, "stage %q is not assigned for %q", args[1], args[0]).WithInput(args[1])
		}
		for _, ref := range refs {
			fmt.Println(ref.Version)
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <artifact>",
	Short: "Print the index metadata of an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := collector.Scope{Kind: collector.ScopeHead, IncludeWorkingTree: true}
		_, st, err := assembleScope(cmd.Context(), scope)
		if err != nil {
			return err
		}
		meta, err := query.Describe(st, args[0])
		if err != nil {
			return err
		}
		f := presentation.NewFormatter(os.Stdout)
		if jsonOut {
			return f.JSON(meta)
		}
		return f.Text(presentation.Describe(args[0], meta))
	},
}

var stagesAllowed bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List stages in use across the registry",
	Long: `List the unique stage names currently in use, or the configured
allow-list with --allowed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if stagesAllowed {
			if len(cfg.Stages) == 0 {
				fmt.Println("any stage is allowed")
				return nil
			}
			fmt.Println(strings.Join(cfg.Stages, "\n"))
			return nil
		}
		_, st, err := assembleScope(cmd.Context(), collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		for _, stage := range st.Stages() {
			fmt.Println(stage)
		}
		return nil
	},
}

var checkRefCmd = &cobra.Command{
	Use:   "check-ref <ref>",
	Short: "Classify a ref and print the event it encodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := assembleScope(cmd.Context(), collector.Scope{Kind: collector.ScopeHead})
		if err != nil {
			return err
		}
		rec, err := query.CheckRef(st, args[0])
		if err != nil {
			return err
		}
		f := presentation.NewFormatter(os.Stdout)
		if jsonOut {
			return f.JSON(rec)
		}
		out := fmt.Sprintf("%s: %s of %q", rec.Ref, rec.Kind, rec.Artifact)
		if rec.Version != "" {
			out += fmt.Sprintf(" version %s", rec.Version)
		}
		if rec.Stage != "" {
			out += fmt.Sprintf(" stage %s", rec.Stage)
		}
		return f.Text(out)
	},
}

var parseTagCmd = &cobra.Command{
	Use:   "parse-tag <name>",
	Short: "Decode a tag name without touching the repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := codec.Parse(args[0], cfg.Convention())
		if e == nil {
			return errs.New(errs.KindValidation, "%q is not a registry tag", args[0]).WithInput(args[0])
		}
		return presentation.NewFormatter(os.Stdout).JSON(e)
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesAllowed, "allowed", false,
		"print the configured stage allow-list instead")
	rootCmd.AddCommand(latestCmd, whichCmd, describeCmd, stagesCmd, checkRefCmd, parseTagCmd)
}
