// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2atest provides an in-process mock A2A agent and OAuth2 token endpoint for tests.
//
// The agent keeps tasks in memory and replays scripted event streams: every tasks/sendSubscribe or
// tasks/resubscribe request for a task consumes the next script queued with [Agent.Script].
package a2atest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/agentvault/a2a"
)

// Step is one action of a scripted event stream.
type Step struct {
	event  a2a.Event
	raw    string
	wait   <-chan struct{}
	status int
	errObj *a2a.ErrorObject
}

// Send writes ev as an SSE frame.
func Send(ev a2a.Event) Step { return Step{event: ev} }

// Raw writes frame verbatim. The frame should end with a blank line.
func Raw(frame string) Step { return Step{raw: frame} }

// Wait blocks the stream until ch is closed or the client goes away.
func Wait(ch <-chan struct{}) Step { return Step{wait: ch} }

// Reject fails the handshake with status and, when obj is not nil, a JSON-RPC error body.
// It must be the only step of its script.
func Reject(status int, obj *a2a.ErrorObject) Step { return Step{status: status, errObj: obj} }

// Agent is a mock A2A agent served by an [httptest.Server].
type Agent struct {
	srv *httptest.Server

	authorize func(r *http.Request) bool
	delay     time.Duration
	card      a2a.AgentCard

	mu       sync.Mutex
	tasks    map[string]*a2a.Task
	nextID   int
	scripts  map[string][][]Step
	opens    map[string]int
	requests map[string]int
	headers  []http.Header
}

// AgentOption configures an [Agent].
type AgentOption func(*Agent)

// RequireAPIKey rejects requests whose X-Api-Key header is not key with HTTP 401.
func RequireAPIKey(key string) AgentOption {
	return func(a *Agent) {
		a.authorize = func(r *http.Request) bool { return r.Header.Get(a2a.HeaderAPIKey) == key }
	}
}

// RequireBearer rejects requests whose bearer token is not token with HTTP 401.
func RequireBearer(token string) AgentOption {
	return func(a *Agent) {
		a.authorize = func(r *http.Request) bool { return r.Header.Get(a2a.HeaderAuthorization) == "Bearer "+token }
	}
}

// RequireAuth rejects requests for which ok returns false with HTTP 401.
func RequireAuth(ok func(r *http.Request) bool) AgentOption {
	return func(a *Agent) {
		a.authorize = ok
	}
}

// Delay holds every unary response for d, or until the client gives up.
func Delay(d time.Duration) AgentOption {
	return func(a *Agent) {
		a.delay = d
	}
}

// WithAuthSchemes sets the auth schemes advertised by [Agent.Card].
func WithAuthSchemes(schemes ...a2a.AuthScheme) AgentOption {
	return func(a *Agent) {
		a.card.AuthSchemes = schemes
	}
}

// NewAgent starts a mock agent that is closed when the test ends.
func NewAgent(tb testing.TB, opts ...AgentOption) *Agent {
	tb.Helper()

	a := &Agent{
		card: a2a.AgentCard{
			Name:         "mock-agent",
			Version:      "test",
			Capabilities: a2a.AgentCapabilities{Streaming: true},
		},
		tasks:    make(map[string]*a2a.Task),
		scripts:  make(map[string][][]Step),
		opens:    make(map[string]int),
		requests: make(map[string]int),
	}
	for _, o := range opts {
		o(a)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+a2a.DefaultRPCPath, a.serveRPC)
	mux.HandleFunc("GET "+a2a.AgentCardWellKnownPath, a.serveCard)
	a.srv = httptest.NewServer(mux)
	tb.Cleanup(a.srv.Close)

	a.card.URL = a.URL()
	return a
}

// URL returns the JSON-RPC endpoint.
func (a *Agent) URL() string {
	return a.srv.URL + a2a.DefaultRPCPath
}

// BaseURL returns the server root, where the agent card is served.
func (a *Agent) BaseURL() string {
	return a.srv.URL
}

// Card returns the agent card describing this agent.
func (a *Agent) Card() *a2a.AgentCard {
	card := a.card
	return &card
}

// CloseClientConnections forcibly closes every open client connection.
func (a *Agent) CloseClientConnections() {
	a.srv.CloseClientConnections()
}

// AddTask stores task, replacing any task with the same id.
func (a *Agent) AddTask(task a2a.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := task
	a.tasks[task.ID] = &t
}

// Task returns a copy of the stored task.
func (a *Agent) Task(id string) (a2a.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[id]
	if !ok {
		return a2a.Task{}, false
	}
	return *t, true
}

// Script queues one stream script for taskID. Stream requests consume scripts in order;
// a request with no script left is answered with HTTP 503.
func (a *Agent) Script(taskID string, steps ...Step) {
	if steps == nil {
		steps = []Step{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[taskID] = append(a.scripts[taskID], steps)
}

// StreamOpens returns how many stream requests were received for taskID.
func (a *Agent) StreamOpens(taskID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens[taskID]
}

// Requests returns how many requests for method were received, including rejected ones.
func (a *Agent) Requests(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[method]
}

// TotalRequests returns how many JSON-RPC requests were received.
func (a *Agent) TotalRequests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.requests {
		n += c
	}
	return n
}

// LastHeaders returns the headers of the most recent JSON-RPC request.
func (a *Agent) LastHeaders() http.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.headers) == 0 {
		return nil
	}
	return a.headers[len(a.headers)-1].Clone()
}

func (a *Agent) serveCard(w http.ResponseWriter, _ *http.Request) {
	data, err := json.Marshal(a.Card())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", a2a.ContentTypeJSON)
	w.Write(data)
}

func (a *Agent) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, a2a.CodeParseError, err.Error())
		return
	}
	req, err := a2a.DecodeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, a2a.CodeInvalidRequest, err.Error())
		return
	}

	a.mu.Lock()
	a.requests[req.Method]++
	a.headers = append(a.headers, r.Header.Clone())
	a.mu.Unlock()

	if a.authorize != nil && !a.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if info, ok := a2a.LookupMethod(req.Method); ok && info.Streaming {
		a.serveStream(w, r, req)
		return
	}

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-r.Context().Done():
			return
		}
	}

	switch req.Method {
	case a2a.MethodTasksSend:
		a.handleSend(w, req)
	case a2a.MethodTasksGet:
		a.handleGet(w, req)
	case a2a.MethodTasksCancel:
		a.handleCancel(w, req)
	default:
		writeError(w, http.StatusOK, req.ID, a2a.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (a *Agent) handleSend(w http.ResponseWriter, req *a2a.Request) {
	var p a2a.SendParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeError(w, http.StatusOK, req.ID, a2a.CodeInvalidParams, err.Error())
		return
	}
	if err := p.Message.Validate(); err != nil {
		writeError(w, http.StatusOK, req.ID, a2a.CodeInvalidParams, err.Error())
		return
	}

	a.mu.Lock()
	now := time.Now().UTC()
	var task *a2a.Task
	if p.ID == "" {
		a.nextID++
		task = &a2a.Task{
			ID:        "t" + strconv.Itoa(a.nextID),
			State:     a2a.TaskStateSubmitted,
			CreatedAt: now,
		}
		if p.WebhookURL != "" {
			task.Metadata = map[string]any{"webhookUrl": p.WebhookURL}
		}
		a.tasks[task.ID] = task
	} else {
		var ok bool
		if task, ok = a.tasks[p.ID]; !ok {
			a.mu.Unlock()
			writeError(w, http.StatusOK, req.ID, a2a.CodeTaskNotFound, "task not found: "+p.ID)
			return
		}
		if task.State == a2a.TaskStateInputRequired {
			task.State = a2a.TaskStateWorking
		}
	}
	task.AppendMessage(p.Message)
	task.UpdatedAt = now
	id := task.ID
	a.mu.Unlock()

	writeResult(w, req.ID, a2a.SendResult{ID: id})
}

func (a *Agent) handleGet(w http.ResponseWriter, req *a2a.Request) {
	var p a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeError(w, http.StatusOK, req.ID, a2a.CodeInvalidParams, err.Error())
		return
	}
	task, ok := a.Task(p.ID)
	if !ok {
		writeError(w, http.StatusOK, req.ID, a2a.CodeTaskNotFound, "task not found: "+p.ID)
		return
	}
	writeResult(w, req.ID, task)
}

func (a *Agent) handleCancel(w http.ResponseWriter, req *a2a.Request) {
	var p a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeError(w, http.StatusOK, req.ID, a2a.CodeInvalidParams, err.Error())
		return
	}

	a.mu.Lock()
	task, ok := a.tasks[p.ID]
	if !ok {
		a.mu.Unlock()
		writeError(w, http.StatusOK, req.ID, a2a.CodeTaskNotFound, "task not found: "+p.ID)
		return
	}
	var res a2a.CancelResult
	if task.State.Terminal() {
		res = a2a.CancelResult{Message: fmt.Sprintf("task already %s", task.State)}
	} else {
		task.State = a2a.TaskStateCanceled
		task.UpdatedAt = time.Now().UTC()
		res = a2a.CancelResult{Success: true}
	}
	a.mu.Unlock()

	writeResult(w, req.ID, res)
}

func (a *Agent) serveStream(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	var p a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, a2a.CodeInvalidParams, err.Error())
		return
	}

	a.mu.Lock()
	a.opens[p.ID]++
	var script []Step
	if q := a.scripts[p.ID]; len(q) > 0 {
		script, a.scripts[p.ID] = q[0], q[1:]
	}
	_, known := a.tasks[p.ID]
	a.mu.Unlock()

	switch {
	case script == nil && !known:
		writeError(w, http.StatusNotFound, req.ID, a2a.CodeTaskNotFound, "task not found: "+p.ID)
		return
	case script == nil:
		http.Error(w, "no stream scripted", http.StatusServiceUnavailable)
		return
	case len(script) > 0 && script[0].status != 0:
		if script[0].errObj != nil {
			writeError(w, script[0].status, req.ID, script[0].errObj.Code, script[0].errObj.Message)
		} else {
			http.Error(w, http.StatusText(script[0].status), script[0].status)
		}
		return
	}

	sw := newSSEWriter(w)
	sw.open()
	for _, step := range script {
		var err error
		switch {
		case step.wait != nil:
			select {
			case <-step.wait:
			case <-r.Context().Done():
				return
			}
		case step.event != nil:
			a.observe(p.ID, step.event)
			err = sw.event(step.event)
		default:
			err = sw.raw(step.raw)
		}
		if err != nil {
			return
		}
	}
}

// observe folds a streamed status update into the stored task.
func (a *Agent) observe(taskID string, ev a2a.Event) {
	su, ok := ev.(*a2a.TaskStatusUpdate)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if task, ok := a.tasks[taskID]; ok {
		task.State = su.State
		task.UpdatedAt = time.Now().UTC()
	}
}

func writeResult(w http.ResponseWriter, id jsontext.Value, result any) {
	data, err := a2a.EncodeResponse(id, result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, a2a.CodeInternalError, err.Error())
		return
	}
	w.Header().Set("Content-Type", a2a.ContentTypeJSON)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, id jsontext.Value, code int, msg string) {
	data, err := a2a.EncodeErrorResponse(id, &a2a.ErrorObject{Code: code, Message: msg})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", a2a.ContentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}
