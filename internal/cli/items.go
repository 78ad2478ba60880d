package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// ItemsOptions holds flags for the items command.
type ItemsOptions struct {
	*RootOptions
	State       string
	Category    string
	MinPriority int
	Limit       uint64
}

// ItemsOutput lists action items with per-state totals.
type ItemsOutput struct {
	Items  []model.ActionItem `json:"items"`
	Counts map[string]int     `json:"counts"`
}

// NewItemsCommand creates the items command.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List action items",
		Long: `List action items, oldest first, with totals per state.

Examples:
  aiemployee items --state planned
  aiemployee items --category finance --min-priority 4 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItems(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "", "only items in this state")
	cmd.Flags().StringVar(&opts.Category, "category", "", "only items in this category")
	cmd.Flags().IntVar(&opts.MinPriority, "min-priority", 0, "only items at or above this priority")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", 0, "maximum number of items (0 = all)")

	return cmd
}

func runItems(opts *ItemsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	filter := store.ActionItemFilter{
		State:       model.State(opts.State),
		Category:    model.Category(opts.Category),
		MinPriority: opts.MinPriority,
		Limit:       opts.Limit,
	}
	if opts.State != "" && !filter.State.Valid() {
		return f.Fail(ExitCommandError, fmt.Sprintf("unknown state %q", opts.State), nil)
	}
	if opts.Category != "" && !filter.Category.Valid() {
		return f.Fail(ExitCommandError, fmt.Sprintf("unknown category %q", opts.Category), nil)
	}

	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	ctx := context.Background()
	items, err := e.store.ListActionItems(ctx, filter)
	if err != nil {
		return f.Fail(ExitFailure, "failed to list items", err)
	}
	counts, err := e.store.CountActionItems(ctx)
	if err != nil {
		return f.Fail(ExitFailure, "failed to count items", err)
	}

	out := ItemsOutput{Items: items, Counts: make(map[string]int, len(counts))}
	for state, n := range counts {
		out.Counts[string(state)] = n
	}
	return f.Render(out, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "No action items.")
		}
		for _, it := range items {
			fmt.Fprintf(w, "%s  %-12s p%d %-9s risk=%-3d %s\n",
				it.ID, it.State, it.Score.Priority, it.Score.Category, it.Score.Risk, it.SourceMessageID)
		}
		fmt.Fprintln(w)
		for _, s := range []model.State{model.StateNeedsAction, model.StatePlanned, model.StateApproved, model.StateRejected, model.StateDone} {
			fmt.Fprintf(w, "%s: %d  ", s, counts[s])
		}
		fmt.Fprintln(w)
	})
}
