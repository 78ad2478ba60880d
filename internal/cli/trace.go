package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Component string
	Event     string
	Result    string
	Limit     uint64
}

// TraceResult is the full record of one action item.
type TraceResult struct {
	Item     model.ActionItem     `json:"item"`
	Message  *model.Message       `json:"message,omitempty"`
	History  []model.ActionEvent  `json:"history"`
	Activity []model.Notification `json:"activity"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [item]",
		Short: "Show an item's history or the activity log",
		Long: `With an item, show the item, its source message, its transition history
and every notification logged for it.

Without an item, list the activity log, optionally filtered.

Examples:
  aiemployee trace gmail:18c2f
  aiemployee trace --component gmail --event restart
  aiemployee trace --result failed --limit 20 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runTraceItem(opts, args[0], cmd)
			}
			return runTraceActivity(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Component, "component", "", "only activity from this component")
	cmd.Flags().StringVar(&opts.Event, "event", "", "only activity with this event")
	cmd.Flags().StringVar(&opts.Result, "result", "", "only activity with this result (ok|failed)")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", 0, "maximum number of activity rows (0 = all)")

	return cmd
}

func runTraceItem(opts *TraceOptions, ref string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
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
	history, err := mgr.History(ctx, item.ID)
	if err != nil {
		return f.Fail(ExitFailure, "failed to load history", err)
	}
	activity, err := e.store.ListActivity(ctx, store.ActivityFilter{
		ActionItemID: item.ID,
		Event:        opts.Event,
		Result:       opts.Result,
		Limit:        opts.Limit,
	})
	if err != nil {
		return f.Fail(ExitFailure, "failed to load activity", err)
	}

	result := TraceResult{Item: item, History: history, Activity: activity}
	if msg, err := e.store.GetMessage(ctx, item.SourceMessageID); err == nil {
		result.Message = &msg
	} else {
		e.logger.Debug("source message unavailable", "message_id", item.SourceMessageID, "error", err)
	}

	return f.Render(result, func(w io.Writer) {
		printTraceText(w, result)
	})
}

func printTraceText(w io.Writer, r TraceResult) {
	it := r.Item
	fmt.Fprintf(w, "Item: %s\n", it.ID)
	fmt.Fprintf(w, "State: %s\n", it.State)
	fmt.Fprintf(w, "Score: %s\n", it.Score.Summary())
	if r.Message != nil {
		fmt.Fprintf(w, "Message: %s from %s: %q\n", r.Message.ID, r.Message.Sender, r.Message.Subject)
	}
	if it.Plan != nil {
		fmt.Fprintf(w, "Plan (revision %d):\n%s\n", it.Plan.Revision, it.Plan.Body)
	}
	if it.SentResponse != nil {
		fmt.Fprintf(w, "Sent: %s to %s at %s\n", it.SentResponse.ProviderRef, it.SentResponse.Recipient,
			it.SentResponse.SentAt.Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "History:")
	for _, ev := range r.History {
		line := fmt.Sprintf("  [%d] %s %s -> %s by %s", ev.Seq, ev.Event, ev.FromState, ev.ToState, ev.Actor)
		if ev.Note != "" {
			line += ": " + ev.Note
		}
		fmt.Fprintln(w, line)
	}

	if len(r.Activity) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Activity:")
		printActivity(w, r.Activity)
	}
}

func runTraceActivity(opts *TraceOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	activity, err := e.store.ListActivity(context.Background(), store.ActivityFilter{
		Component: opts.Component,
		Event:     opts.Event,
		Result:    opts.Result,
		Limit:     opts.Limit,
	})
	if err != nil {
		return f.Fail(ExitFailure, "failed to load activity", err)
	}
	return f.Render(activity, func(w io.Writer) {
		if len(activity) == 0 {
			fmt.Fprintln(w, "No activity.")
			return
		}
		printActivity(w, activity)
	})
}

func printActivity(w io.Writer, activity []model.Notification) {
	for _, n := range activity {
		target := n.ActionItemID
		if target == "" {
			target = n.Component
		}
		line := fmt.Sprintf("  [%d] %s %s %s %s", n.Seq, n.Timestamp.Format(time.RFC3339), n.Event, n.Result, target)
		if n.Detail != "" {
			line += ": " + n.Detail
		}
		fmt.Fprintln(w, line)
	}
}
