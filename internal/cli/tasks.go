package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/ids"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage free-standing tasks",
		Long: `Manage tasks that are not tied to a message.

Examples:
  aiemployee tasks add "Renew TLS certificate" --priority 4
  aiemployee tasks next
  aiemployee tasks done 01936f...`,
	}

	cmd.AddCommand(newTasksAddCommand(rootOpts))
	cmd.AddCommand(newTasksListCommand(rootOpts))
	cmd.AddCommand(newTasksNextCommand(rootOpts))
	cmd.AddCommand(newTasksStatusCommand(rootOpts, "start", "Mark a task in progress", model.TaskInProgress))
	cmd.AddCommand(newTasksStatusCommand(rootOpts, "done", "Mark a task completed", model.TaskCompleted))
	cmd.AddCommand(newTasksStatusCommand(rootOpts, "cancel", "Cancel a task", model.TaskCancelled))
	cmd.AddCommand(newTasksRemoveCommand(rootOpts))

	return cmd
}

// withStore opens the env for a task subcommand and reports failures in
// the configured format.
func withStore(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, st *store.Store, f *OutputFormatter) error) error {
	f := opts.formatter(cmd)
	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()
	return fn(context.Background(), e.store, f)
}

func newTasksAddCommand(opts *RootOptions) *cobra.Command {
	var (
		description string
		priority    int
		assignee    string
	)

	cmd := &cobra.Command{
		Use:           "add <title>",
		Short:         "Create a pending task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if priority < model.MinPriority || priority > model.MaxPriority {
				return opts.formatter(cmd).Fail(ExitCommandError,
					fmt.Sprintf("priority must be within [%d,%d]", model.MinPriority, model.MaxPriority), nil)
			}
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				now := time.Now().UTC()
				t := model.Task{
					ID:          ids.UUIDv7{}.Generate(),
					Title:       args[0],
					Description: description,
					Priority:    priority,
					Status:      model.TaskPending,
					Assignee:    assignee,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := st.CreateTask(ctx, t); err != nil {
					return f.Fail(ExitFailure, "failed to create task", err)
				}
				return f.Render(t, func(w io.Writer) {
					fmt.Fprintf(w, "Created task %s\n", t.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().IntVar(&priority, "priority", model.DefaultPriority, "priority 1 (low) to 5 (urgent)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "who the task is for")

	return cmd
}

func newTasksListCommand(opts *RootOptions) *cobra.Command {
	var (
		status string
		filter store.TaskFilter
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List tasks, highest priority first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = model.TaskStatus(status)
			if status != "" && !filter.Status.Valid() {
				return opts.formatter(cmd).Fail(ExitCommandError, fmt.Sprintf("unknown task status %q", status), nil)
			}
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				tasks, err := st.ListTasks(ctx, filter)
				if err != nil {
					return f.Fail(ExitFailure, "failed to list tasks", err)
				}
				return f.Render(tasks, func(w io.Writer) {
					if len(tasks) == 0 {
						fmt.Fprintln(w, "No tasks.")
					}
					for _, t := range tasks {
						printTask(w, t)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	cmd.Flags().StringVar(&filter.Assignee, "assignee", "", "only tasks for this assignee")
	cmd.Flags().IntVar(&filter.MinPriority, "min-priority", 0, "only tasks at or above this priority")
	cmd.Flags().Uint64Var(&filter.Limit, "limit", 0, "maximum number of tasks (0 = all)")

	return cmd
}

func newTasksNextCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "next",
		Short:         "Show the highest-priority pending task",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				t, err := st.NextTask(ctx)
				if err != nil {
					return f.Fail(ExitFailure, "no pending task", err)
				}
				return f.Render(t, func(w io.Writer) {
					printTask(w, t)
				})
			})
		},
	}
}

func newTasksStatusCommand(opts *RootOptions, use, short string, status model.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <task-id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				t, err := st.UpdateTaskStatus(ctx, args[0], status, time.Now().UTC())
				if err != nil {
					return f.Fail(ExitFailure, "failed to update task", err)
				}
				return f.Render(t, func(w io.Writer) {
					printTask(w, t)
				})
			})
		},
	}
}

func newTasksRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <task-id>",
		Short:         "Delete a task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				if err := st.DeleteTask(ctx, args[0]); err != nil {
					return f.Fail(ExitFailure, "failed to delete task", err)
				}
				return f.Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted task %s\n", args[0])
				})
			})
		},
	}
}

func printTask(w io.Writer, t model.Task) {
	line := fmt.Sprintf("%s  %-11s p%d %s", t.ID, t.Status, t.Priority, t.Title)
	if t.Assignee != "" {
		line += " (@" + t.Assignee + ")"
	}
	fmt.Fprintln(w, line)
}
