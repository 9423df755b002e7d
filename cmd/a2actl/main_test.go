// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	gocmp "github.com/google/go-cmp/cmp"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/a2atest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level=error"}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func status(taskID string, state a2a.TaskState) *a2a.TaskStatusUpdate {
	return &a2a.TaskStatusUpdate{TaskID: taskID, State: state}
}

func TestCard(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)

	tests := map[string]string{
		"well-known url": agent.BaseURL(),
		"json file": writeFile(t, "agent.json",
			`{"name":"mock-agent","url":"`+agent.URL()+`","capabilities":{"streaming":true}}`),
		"yaml file": writeFile(t, "agent.yaml",
			"name: mock-agent\nurl: "+agent.URL()+"\ncapabilities:\n  streaming: true\n"),
	}

	for name, ref := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, "--agent", ref, "card")
			if err != nil {
				t.Fatalf("card error = %v", err)
			}
			var got a2a.AgentCard
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("card output %q: %v", out, err)
			}
			want := a2a.AgentCard{Name: "mock-agent", URL: agent.URL(), Capabilities: a2a.AgentCapabilities{Streaming: true}}
			got.Version = ""
			if diff := gocmp.Diff(want, got); diff != "" {
				t.Errorf("card (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNoAgent(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "card"); !errors.Is(err, errNoAgent) {
		t.Errorf("card without --agent error = %v, want errNoAgent", err)
	}
}

func TestSendGetAndList(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	cache := filepath.Join(t.TempDir(), "tasks.db")

	out, err := execute(t, "--agent", agent.BaseURL(), "--cache", cache, "send", "book", "a", "table")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "t1" {
		t.Fatalf("send printed %q, want t1", got)
	}
	if task, _ := agent.Task("t1"); len(task.Messages) != 1 || task.Messages[0].Text() != "book a table" {
		t.Errorf("agent received %+v, want one message %q", task.Messages, "book a table")
	}

	if _, err := execute(t, "--agent", agent.BaseURL(), "--cache", cache, "send", "--task", "t1", "for", "two"); err != nil {
		t.Fatalf("send --task error = %v", err)
	}

	cachedOut, err := execute(t, "--agent", agent.BaseURL(), "--cache", cache, "get", "--cached", "t1")
	if err != nil {
		t.Fatalf("get --cached error = %v", err)
	}
	var cached a2a.Task
	if err := json.Unmarshal([]byte(cachedOut), &cached); err != nil {
		t.Fatalf("get --cached output %q: %v", cachedOut, err)
	}
	if len(cached.Messages) != 2 {
		t.Errorf("cached task has %d messages, want 2", len(cached.Messages))
	}

	out, err = execute(t, "--agent", agent.BaseURL(), "--cache", cache, "get", "t1")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	var got a2a.Task
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("get output %q: %v", out, err)
	}
	if got.ID != "t1" || got.State != a2a.TaskStateSubmitted {
		t.Errorf("get = %s in %q, want t1 in %q", got.ID, got.State, a2a.TaskStateSubmitted)
	}

	out, err = execute(t, "--cache", cache, "tasks")
	if err != nil {
		t.Fatalf("tasks error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "t1 ") || !strings.Contains(lines[1], "SUBMITTED") {
		t.Errorf("tasks printed:\n%s\nwant a header and t1 in SUBMITTED", out)
	}
}

func TestGetUnknownTask(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	_, err := execute(t, "--agent", agent.BaseURL(), "get", "nope")
	if !a2a.IsTaskNotFound(err) {
		t.Fatalf("get error = %v, want task not found", err)
	}
	if got := agent.Requests(a2a.MethodTasksGet); got != 1 {
		t.Errorf("tasks/get requests = %d, want 1 (not retried)", got)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	agent.AddTask(a2a.Task{ID: "t7", State: a2a.TaskStateWorking})

	out, err := execute(t, "--agent", agent.BaseURL(), "cancel", "t7")
	if err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	var res a2a.CancelResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("cancel output %q: %v", out, err)
	}
	if !res.Success {
		t.Errorf("cancel = %+v, want success", res)
	}
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		credentials string
		wantErr     error
	}{
		"from file": {
			credentials: "services:\n  mock:\n    api_key: sk-1\n",
		},
		"missing": {
			credentials: "services: {}\n",
			wantErr:     a2a.ErrMissingCredential,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			agent := a2atest.NewAgent(t,
				a2atest.RequireAPIKey("sk-1"),
				a2atest.WithAuthSchemes(a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "mock"}),
			)
			creds := writeFile(t, "credentials.yaml", tt.credentials)

			// A prefix nobody sets keeps the process environment out of the test.
			_, err := execute(t, "--agent", agent.BaseURL(), "--credentials", creds,
				"--env-prefix", "A2ACTL_TEST_UNSET", "send", "hi")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("send error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && agent.TotalRequests() != 0 {
				t.Errorf("agent saw %d requests, want none", agent.TotalRequests())
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	cfg := writeFile(t, "a2actl.yaml", "agent: "+agent.BaseURL()+"\nretries: 1\n")

	out, err := execute(t, "--config", cfg, "card")
	if err != nil {
		t.Fatalf("card error = %v", err)
	}
	if !strings.Contains(out, agent.URL()) {
		t.Errorf("card printed %q, want the agent url %q", out, agent.URL())
	}

	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "card"); err == nil {
		t.Error("card with a missing --config file error = nil")
	}
}

func TestWatch(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	reply := a2a.NewTextMessage(a2a.RoleAssistant, "which city?")
	agent.Script("t1",
		a2atest.Send(status("t1", a2a.TaskStateWorking)),
		a2atest.Send(&a2a.TaskMessageEvent{TaskID: "t1", Message: reply}),
		a2atest.Send(&a2a.TaskArtifactEvent{TaskID: "t1", Artifact: a2a.Artifact{ID: "a1", Content: "draft"}}),
		a2atest.Send(status("t1", a2a.TaskStateCompleted)),
	)
	agent.Script("t2",
		a2atest.Send(status("t2", a2a.TaskStateWorking)),
		a2atest.Send(status("t2", a2a.TaskStateFailed)),
	)
	cache := filepath.Join(t.TempDir(), "tasks.db")

	out, err := execute(t, "--agent", agent.BaseURL(), "--cache", cache, "watch", "t1", "t2")
	if err != nil {
		t.Fatalf("watch error = %v", err)
	}
	for _, want := range []string{
		"t1 status WORKING\n",
		"t1 message assistant: which city?\n",
		"t1 artifact a1: draft\n",
		"t1 status COMPLETED\n",
		"t2 status WORKING\n",
		"t2 status FAILED\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("watch output is missing %q:\n%s", want, out)
		}
	}

	list, err := execute(t, "--cache", cache, "tasks")
	if err != nil {
		t.Fatalf("tasks error = %v", err)
	}
	if !strings.Contains(list, "COMPLETED") || !strings.Contains(list, "FAILED") {
		t.Errorf("tasks printed:\n%s\nwant t1 COMPLETED and t2 FAILED", list)
	}
}

func TestSendFollow(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	agent.Script("t1",
		a2atest.Send(status("t1", a2a.TaskStateWorking)),
		a2atest.Send(status("t1", a2a.TaskStateCompleted)),
	)

	out, err := execute(t, "--agent", agent.BaseURL(), "send", "-f", "hello")
	if err != nil {
		t.Fatalf("send -f error = %v", err)
	}
	if want := "t1\nt1 status WORKING\nt1 status COMPLETED\n"; out != want {
		t.Errorf("send -f printed %q, want %q", out, want)
	}
}

func TestWatchReconnectFails(t *testing.T) {
	t.Parallel()

	agent := a2atest.NewAgent(t)
	// The stream ends early and the resubscribe finds no task.
	agent.Script("t1", a2atest.Send(status("t1", a2a.TaskStateWorking)))

	out, err := execute(t, "--agent", agent.BaseURL(), "watch", "t1")
	var serr *a2a.StreamError
	if !errors.As(err, &serr) || serr.Code != a2a.StreamCodeReconnectFailed {
		t.Fatalf("watch error = %v, want a failed reconnect", err)
	}
	if !strings.Contains(out, "t1 error -33004") {
		t.Errorf("watch output is missing the fatal error:\n%s", out)
	}
	if got := agent.StreamOpens("t1"); got != 2 {
		t.Errorf("stream opens = %d, want 2", got)
	}
}
