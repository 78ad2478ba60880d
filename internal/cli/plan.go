package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Body     string
	BodyFile string
	Revision int
}

// PlanOutput reports the plan now attached to an item.
type PlanOutput struct {
	ActionItemID string `json:"action_item_id"`
	State        string `json:"state"`
	Revision     int    `json:"revision"`
	ContentHash  string `json:"content_hash"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <item>",
		Short: "Attach or revise the response plan of an action item",
		Long: `Attach a plan to an item in needs_action, or revise the plan of a
planned item. Each revision bumps the plan revision; approvals must name
the revision they reviewed.

Examples:
  aiemployee plan gmail:18c2f --body "Thanks, we will call on Tuesday."
  aiemployee plan gmail:18c2f --body-file ./reply.txt --revision 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Body, "body", "", "plan body")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "", "read the plan body from a file")
	cmd.Flags().IntVar(&opts.Revision, "revision", 0, "expected current revision when revising")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	cmd.MarkFlagsOneRequired("body", "body-file")

	return cmd
}

func runPlan(opts *PlanOptions, ref string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	body := opts.Body
	if opts.BodyFile != "" {
		data, err := os.ReadFile(opts.BodyFile)
		if err != nil {
			return f.Fail(ExitCommandError, "failed to read plan body", err)
		}
		body = string(data)
	}
	if strings.TrimSpace(body) == "" {
		return f.Fail(ExitCommandError, "plan body is empty", nil)
	}

	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	ctx := context.Background()
	mgr := e.manager()
	item, err := resolveItem(ctx, mgr, ref)
	if err != nil {
		return f.Fail(ExitFailure, "failed to find action item", err)
	}

	var plan model.Plan
	state := item.State
	if item.State == model.StateNeedsAction {
		res, err := mgr.Transition(ctx, item.ID, model.EventPlanCreated,
			lifecycle.WithPlan(body),
			lifecycle.WithActor(ActorCLI),
		)
		if err != nil {
			return f.Fail(ExitFailure, "failed to attach plan", err)
		}
		plan, state = *res.Item.Plan, res.To
	} else {
		plan, err = mgr.RevisePlan(ctx, item.ID, body, opts.Revision)
		if err != nil {
			return f.Fail(ExitFailure, "failed to revise plan", err)
		}
	}

	out := PlanOutput{
		ActionItemID: item.ID,
		State:        string(state),
		Revision:     plan.Revision,
		ContentHash:  plan.ContentHash,
	}
	return f.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s: plan revision %d (%s)\n", out.ActionItemID, out.Revision, out.State)
	})
}
