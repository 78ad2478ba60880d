package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// TransitionOptions holds flags for the transition command.
type TransitionOptions struct {
	*RootOptions
	Note     string
	Revision int
	Actor    string
}

// TransitionOutput reports an applied (or idempotent) transition.
type TransitionOutput struct {
	ActionItemID string `json:"action_item_id"`
	Event        string `json:"event"`
	From         string `json:"from"`
	To           string `json:"to"`
	Applied      bool   `json:"applied"`
	ProviderRef  string `json:"provider_ref,omitempty"`
}

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransitionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transition <item> <event>",
		Short: "Apply a lifecycle event to an action item",
		Long: `Apply a lifecycle event to an action item.

<item> is an action item ID or the ID of the message it came from.
Events: ` + eventNames() + `

human-approves requires --revision to match the current plan revision.
response-sent delivers the approved plan through the spool outbox before
recording the transition.

Examples:
  aiemployee transition gmail:18c2f human-approves --revision 1
  aiemployee transition gmail:18c2f response-sent
  aiemployee transition 3f9a... human-rejects --note "spam"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Note, "note", "", "note recorded in the item history")
	cmd.Flags().IntVar(&opts.Revision, "revision", 0, "expected plan revision (required by human-approves)")
	cmd.Flags().StringVar(&opts.Actor, "actor", ActorCLI, "actor recorded in the item history")

	return cmd
}

func eventNames() string {
	names := make([]string, len(model.Events))
	for i, ev := range model.Events {
		names[i] = string(ev)
	}
	return strings.Join(names, ", ")
}

func runTransition(opts *TransitionOptions, ref, event string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ev, ok := model.ParseEvent(event)
	if !ok {
		return f.Fail(ExitCommandError, fmt.Sprintf("unknown event %q: must be one of %s", event, eventNames()), nil)
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

	topts := []lifecycle.TransitionOption{lifecycle.WithActor(opts.Actor)}
	if opts.Note != "" {
		topts = append(topts, lifecycle.WithNote(opts.Note))
	}
	if opts.Revision > 0 {
		topts = append(topts, lifecycle.WithExpectedRevision(opts.Revision))
	}

	var providerRef string
	if ev == model.EventResponseSent && item.State == model.StateApproved {
		layout := spool.Layout{Root: e.cfg.Spool.Dir}
		sent, err := deliver(ctx, e, spool.NewOutbox(layout.Outbox(), clock.Real{}), item)
		if err != nil {
			return f.Fail(ExitFailure, "failed to send reply", err)
		}
		providerRef = sent.ProviderRef
		topts = append(topts, lifecycle.WithSentResponse(sent))
	}

	res, err := mgr.Transition(ctx, item.ID, ev, topts...)
	if err != nil {
		return f.Fail(ExitFailure, "transition rejected", err)
	}

	out := TransitionOutput{
		ActionItemID: res.Item.ID,
		Event:        string(ev),
		From:         string(res.From),
		To:           string(res.To),
		Applied:      res.Applied,
		ProviderRef:  providerRef,
	}
	return f.Render(out, func(w io.Writer) {
		if !out.Applied {
			fmt.Fprintf(w, "%s already %s\n", out.ActionItemID, out.To)
			return
		}
		fmt.Fprintf(w, "%s: %s -> %s (%s)\n", out.ActionItemID, out.From, out.To, out.Event)
		if out.ProviderRef != "" {
			fmt.Fprintf(w, "Reply queued: %s\n", out.ProviderRef)
		}
	})
}

// resolveItem accepts an action item ID or a source message ID.
func resolveItem(ctx context.Context, mgr *lifecycle.Manager, ref string) (model.ActionItem, error) {
	item, err := mgr.Get(ctx, ref)
	if err == nil || !lifecycle.IsNotFound(err) {
		return item, err
	}
	if byMessage, err2 := mgr.Get(ctx, model.ActionItemID(ref)); err2 == nil {
		return byMessage, nil
	}
	return model.ActionItem{}, err
}

// deliver sends the item's plan to the original sender.
func deliver(ctx context.Context, e *env, outbox *spool.Outbox, item model.ActionItem) (model.SentResponse, error) {
	if item.Plan == nil {
		return model.SentResponse{}, fmt.Errorf("item %s has no plan", item.ID)
	}
	msg, err := e.store.GetMessage(ctx, item.SourceMessageID)
	if err != nil {
		return model.SentResponse{}, fmt.Errorf("load message %s: %w", item.SourceMessageID, err)
	}
	reply := model.Reply{
		ActionItemID: item.ID,
		Recipient:    model.SenderAddress(msg.Sender),
		Subject:      model.ReplySubject(msg.Subject),
		Body:         item.Plan.Body,
		InReplyTo:    msg.ID,
	}
	ref, err := outbox.Send(ctx, reply)
	if err != nil {
		return model.SentResponse{}, err
	}
	return model.SentResponse{
		Recipient:   reply.Recipient,
		Subject:     reply.Subject,
		Body:        reply.Body,
		ProviderRef: ref,
	}, nil
}
