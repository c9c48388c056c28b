package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/gto/internal/presentation"
	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/index"
)

var (
	annotateType        string
	annotatePath        string
	annotateVirtual     bool
	annotateLabels      []string
	annotateDescription string
	annotateCustom      []string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <artifact>",
	Short: "Add or update an artifact in the index file",
	Long: `Write artifact metadata into artifacts.yaml in the working tree.
Repeated calls merge: unset flags leave existing fields untouched, and
unknown keys already in the file are preserved.

Commit the index change to make it visible to the registry.

Examples:
  gto annotate model --type model --path models/churn.pkl --virtual=false
  gto annotate model --label experimental --description "churn model"
  gto annotate model --custom owner=ml-team`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := cfg.CheckName(name); err != nil {
			return err
		}
		if err := cfg.CheckType(annotateType); err != nil {
			return err
		}
		custom, err := parseCustom(annotateCustom)
		if err != nil {
			return err
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.IndexWriter()
		if err != nil {
			return err
		}
		change, err := w.Annotate(name, index.Artifact{
			Type:        annotateType,
			Path:        annotatePath,
			Virtual:     annotateVirtual,
			Labels:      annotateLabels,
			Description: annotateDescription,
			Custom:      custom,
		}, cmd.Flags().Changed("virtual"))
		if err != nil {
			return err
		}
		return presentation.NewFormatter(os.Stdout).Text(presentation.IndexDiff(change))
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <artifact>",
	Short: "Remove an artifact from the index file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.IndexWriter()
		if err != nil {
			return err
		}
		change, err := w.Remove(args[0])
		if err != nil {
			return err
		}
		return presentation.NewFormatter(os.Stdout).Text(presentation.IndexDiff(change))
	},
}

func parseCustom(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	custom := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errs.New(errs.KindValidation, "--custom expects key=value, got %q", pair).WithInput(pair)
		}
		custom[key] = value
	}
	return custom, nil
}

func init() {
	annotateCmd.Flags().StringVar(&annotateType, "type", "", "artifact type")
	annotateCmd.Flags().StringVar(&annotatePath, "path", "", "repo-relative path or URI of the artifact")
	annotateCmd.Flags().BoolVar(&annotateVirtual, "virtual", true,
		"the registry does not pin the artifact's content to a commit")
	annotateCmd.Flags().StringArrayVar(&annotateLabels, "label", nil, "label to add (repeatable)")
	annotateCmd.Flags().StringVar(&annotateDescription, "description", "", "free-form description")
	annotateCmd.Flags().StringArrayVar(&annotateCustom, "custom", nil, "custom key=value metadata (repeatable)")
	rootCmd.AddCommand(annotateCmd, removeCmd)
}
