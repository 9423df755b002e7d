// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/client"
	"github.com/agentvault/a2a/task"
)

func newCardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "card",
		Short: "Print the agent card",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			card, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(cmd.OutOrStdout(), card)
		}),
	}
}

func newSendCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Start a task, or continue one with --task, and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			card, err := a.agent(ctx)
			if err != nil {
				return err
			}

			msg := a2a.NewTextMessage(a2a.RoleUser, strings.Join(args, " "))
			taskID, _ := cmd.Flags().GetString("task")
			if taskID != "" {
				// Not retried: the agent may have applied a message whose reply was lost.
				if err := a.client.SendMessage(ctx, card, taskID, msg); err != nil {
					return err
				}
			} else {
				var opts []client.TaskOption
				if hook, _ := cmd.Flags().GetString("webhook"); hook != "" {
					opts = append(opts, client.WithWebhookURL(hook))
				}
				if taskID, err = a.client.InitiateTask(ctx, card, msg, opts...); err != nil {
					return err
				}
			}

			k := task.Key{AgentURL: card.URL, TaskID: taskID}
			if _, err := a.tracker.Apply(ctx, k, &a2a.TaskMessageEvent{TaskID: taskID, Message: msg}); err != nil {
				return err
			}
			a.printf(cmd.OutOrStdout(), "%s\n", taskID)

			if follow, _ := cmd.Flags().GetBool("follow"); follow {
				return a.watch(ctx, cmd.OutOrStdout(), card, []string{taskID})
			}
			return nil
		}),
	}
	cmd.Flags().String("task", "", "continue this task instead of starting a new one")
	cmd.Flags().String("webhook", "", "URL the agent notifies about task updates")
	cmd.Flags().BoolP("follow", "f", false, "watch the task after sending")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get TASK_ID...",
		Short: "Print the current state of tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			card, err := a.agent(ctx)
			if err != nil {
				return err
			}
			cached, _ := cmd.Flags().GetBool("cached")

			for _, id := range args {
				var t *a2a.Task
				if cached {
					t, err = a.store.Get(ctx, task.Key{AgentURL: card.URL, TaskID: id})
				} else {
					t, err = client.Retry(ctx, a.retryPolicy(), func(ctx context.Context) (*a2a.Task, error) {
						return a.client.GetTaskStatus(ctx, card, id)
					})
					if err == nil {
						err = a.tracker.Record(ctx, card.URL, t)
					}
				}
				if err != nil {
					return err
				}
				if err := a.printJSON(cmd.OutOrStdout(), t); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().Bool("cached", false, "print the cached copy without asking the agent")
	return cmd
}

func newCancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Ask the agent to cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			card, err := a.agent(ctx)
			if err != nil {
				return err
			}
			res, err := client.Retry(ctx, a.retryPolicy(), func(ctx context.Context) (*a2a.CancelResult, error) {
				return a.client.CancelTask(ctx, card, args[0])
			})
			if err != nil {
				return err
			}
			return a.printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch TASK_ID...",
		Short: "Stream the events of tasks until they finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			card, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}
			return a.watch(cmd.Context(), cmd.OutOrStdout(), card, args)
		}),
	}
}

func newTasksCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List cached tasks, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var agentURL string
			if a.v.GetString("agent") != "" {
				card, err := a.agent(ctx)
				if err != nil {
					return err
				}
				agentURL = card.URL
			}
			tasks, err := a.store.List(ctx, agentURL)
			if err != nil {
				return err
			}

			a.outMu.Lock()
			defer a.outMu.Unlock()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tUPDATED\tMESSAGES")
			for _, t := range tasks {
				updated := "-"
				if !t.UpdatedAt.IsZero() {
					updated = t.UpdatedAt.Format(time.RFC3339)
				}
				state := string(t.State)
				if state == "" {
					state = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.ID, state, updated, len(t.Messages))
			}
			return tw.Flush()
		}),
	}
}

// watch follows every task in ids concurrently. The first failure stops the others.
func (a *app) watch(ctx context.Context, out io.Writer, card *a2a.AgentCard, ids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			return a.follow(ctx, out, card, id)
		})
	}
	return g.Wait()
}

// follow prints the events of one task and folds them into the cache until the stream ends.
func (a *app) follow(ctx context.Context, out io.Writer, card *a2a.AgentCard, id string) error {
	h, err := a.client.Subscribe(ctx, card, id)
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}
	defer a.client.Unsubscribe(h)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan a2a.Event)
	go func() {
		defer close(events)
		for ev := range h.Events() {
			a.printEvent(out, id, ev)
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	last, err := a.tracker.Follow(ctx, task.Key{AgentURL: card.URL, TaskID: id}, events)
	if n := h.Dropped(); n > 0 {
		a.logger.Warn("watch fell behind the agent",
			slog.String("task_id", id),
			slog.Int64("dropped", n),
		)
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}
	if last != nil && !last.State.Terminal() {
		return fmt.Errorf("watch %s: stream ended in state %q", id, last.State)
	}
	return nil
}

func (a *app) printEvent(w io.Writer, taskID string, ev a2a.Event) {
	switch ev := ev.(type) {
	case *a2a.TaskStatusUpdate:
		if ev.Message != nil {
			a.printf(w, "%s status %s: %s\n", taskID, ev.State, ev.Message.Text())
			return
		}
		a.printf(w, "%s status %s\n", taskID, ev.State)
	case *a2a.TaskMessageEvent:
		a.printf(w, "%s message %s: %s\n", taskID, ev.Message.Role, ev.Message.Text())
	case *a2a.TaskArtifactEvent:
		if ev.Artifact.Inline() {
			a.printf(w, "%s artifact %s: %v\n", taskID, ev.Artifact.ID, ev.Artifact.Content)
			return
		}
		a.printf(w, "%s artifact %s: %s\n", taskID, ev.Artifact.ID, ev.Artifact.URL)
	case *a2a.StreamError:
		a.printf(w, "%s error %d: %s\n", taskID, ev.Code, ev.Message)
	}
}
