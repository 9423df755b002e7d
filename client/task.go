// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/event"
)

// TaskOption configures the tasks/send request of [Client.InitiateTask].
type TaskOption func(*a2a.SendParams)

// WithWebhookURL asks the agent to push task updates to url.
func WithWebhookURL(url string) TaskOption {
	return func(p *a2a.SendParams) {
		p.WebhookURL = url
	}
}

// InitiateTask starts a new task on agent with msg and returns the id assigned by the agent.
func (c *Client) InitiateTask(ctx context.Context, agent *a2a.AgentCard, msg a2a.Message, opts ...TaskOption) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("client: invalid message: %w", err)
	}
	params := a2a.SendParams{Message: msg}
	for _, o := range opts {
		o(&params)
	}

	var res a2a.SendResult
	if err := c.call(ctx, agent, a2a.MethodTasksSend, params, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", a2a.NewMalformedError("tasks/send result has no task id", nil)
	}
	c.logger.DebugContext(ctx, "a2a task initiated",
		slog.String("task_id", res.ID),
		slog.String("agent_url", agent.URL),
	)
	return res.ID, nil
}

// SendMessage adds msg to the existing task taskID.
func (c *Client) SendMessage(ctx context.Context, agent *a2a.AgentCard, taskID string, msg a2a.Message) error {
	if taskID == "" {
		return errors.New("client: empty task id")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("client: invalid message: %w", err)
	}

	var res a2a.SendResult
	return c.call(ctx, agent, a2a.MethodTasksSend, a2a.SendParams{ID: taskID, Message: msg}, &res)
}

// GetTaskStatus fetches the current task from agent. The state is reported as the agent has
// it; no local state machine is applied.
func (c *Client) GetTaskStatus(ctx context.Context, agent *a2a.AgentCard, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, errors.New("client: empty task id")
	}

	var task a2a.Task
	if err := c.call(ctx, agent, a2a.MethodTasksGet, a2a.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	if task.State == "" {
		return nil, a2a.NewMalformedError("tasks/get result has no state", nil)
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// CancelTask asks agent to stop work on taskID. An agent refusing to cancel answers with
// Success false rather than an error.
func (c *Client) CancelTask(ctx context.Context, agent *a2a.AgentCard, taskID string) (*a2a.CancelResult, error) {
	if taskID == "" {
		return nil, errors.New("client: empty task id")
	}

	var res a2a.CancelResult
	if err := c.call(ctx, agent, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: taskID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe attaches a listener to the event stream of taskID. See [event.Dispatcher.Subscribe].
func (c *Client) Subscribe(ctx context.Context, agent *a2a.AgentCard, taskID string) (*event.Handle, error) {
	if err := agent.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	h, err := c.dispatcher.Subscribe(ctx, agent, taskID)
	if errors.Is(err, event.ErrDispatcherClosed) {
		return nil, ErrClosed
	}
	return h, err
}

// Unsubscribe detaches h. Calling it more than once is a no-op.
func (c *Client) Unsubscribe(h *event.Handle) error {
	return c.dispatcher.Unsubscribe(h)
}
