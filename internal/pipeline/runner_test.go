package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/foundry/internal/preview"
	"github.com/user/foundry/internal/promptctx"
	"github.com/user/foundry/internal/types"
	"github.com/user/foundry/internal/workspace"
	"github.com/user/foundry/pkg/llm"
)

// fakeProvider returns scripted responses and records every request.
type fakeProvider struct {
	mu    sync.Mutex
	calls []*llm.Request
	queue []genResult
	block chan struct{}
}

type genResult struct {
	resp *llm.Response
	err  error
}

func (p *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.queue) == 0 {
		return &llm.Response{Text: "ok"}, nil
	}
	r := p.queue[0]
	p.queue = p.queue[1:]
	return r.resp, r.err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) enqueue(text string) {
	p.queue = append(p.queue, genResult{resp: &llm.Response{Text: text}})
}

func (p *fakeProvider) enqueueErr(err error) {
	p.queue = append(p.queue, genResult{err: err})
}

// In-memory stores.

type memMessages struct {
	mu   sync.Mutex
	msgs []*types.ChatMessage
}

func (m *memMessages) Append(_ context.Context, msg *types.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memMessages) Tail(_ context.Context, limit int) ([]*types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.msgs) {
		limit = len(m.msgs)
	}
	return append([]*types.ChatMessage(nil), m.msgs[len(m.msgs)-limit:]...), nil
}

func (m *memMessages) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.msgs)), nil
}

func (m *memMessages) bySender(sender types.Sender) []*types.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.ChatMessage
	for _, msg := range m.msgs {
		if msg.Sender == sender {
			out = append(out, msg)
		}
	}
	return out
}

type memTasks struct {
	mu    sync.Mutex
	tasks []*types.AgentTask
}

func (m *memTasks) Add(_ context.Context, task *types.AgentTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks = append(m.tasks, &cp)
	return nil
}

func (m *memTasks) SetStatus(_ context.Context, id types.TaskID, status types.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			t.Status = status
			return nil
		}
	}
	return fmt.Errorf("task not found: %s", id)
}

func (m *memTasks) List(_ context.Context) ([]*types.AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.AgentTask(nil), m.tasks...), nil
}

func (m *memTasks) byRole(role types.Role) []*types.AgentTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.AgentTask
	for _, t := range m.tasks {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

type memTrees struct {
	mu   sync.Mutex
	root *types.FileNode
}

func (m *memTrees) Load(_ context.Context) (*types.FileNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root.Clone(), nil
}

func (m *memTrees) Replace(_ context.Context, root *types.FileNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = root.Clone()
	return nil
}

type memPreviews struct {
	mu    sync.Mutex
	state *types.PreviewState
}

func (m *memPreviews) SavePreview(_ context.Context, s *types.PreviewState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.state = &cp
	return nil
}

func (m *memPreviews) LoadPreview(_ context.Context) (*types.PreviewState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memPreviews) SaveAppState(_ context.Context, _ string, _ map[string]string) error {
	return nil
}

func (m *memPreviews) LoadAppState(_ context.Context, _ string) (map[string]string, error) {
	return nil, nil
}

type fixture struct {
	runner   *Runner
	provider *fakeProvider
	messages *memMessages
	tasks    *memTasks
	trees    *memTrees
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := promptctx.New("gpt-4")
	if err != nil {
		t.Fatal(err)
	}

	provider := &fakeProvider{}
	messages := &memMessages{}
	tasks := &memTasks{}
	trees := &memTrees{root: workspace.DefaultTree()}
	previews := preview.NewManager(&memPreviews{}, nil)

	runner := New(provider, engine, messages, tasks, trees, previews, Config{
		Model:      "gemini-2.5-flash",
		ResolveKey: func() (string, error) { return "test-key", nil },
	})
	return &fixture{runner: runner, provider: provider, messages: messages, tasks: tasks, trees: trees}
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	if !r.WaitIdle(5 * time.Second) {
		t.Fatal("runner did not go idle")
	}
}

func TestTemplateShortCircuit(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue("Looks solid. One suggestion: widen the columns.")

	err := f.runner.Submit(context.Background(), "Build a kanban board with resizable columns", "", types.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// Developer used the canned template; only the critic reached the model.
	if got := f.provider.callCount(); got != 1 {
		t.Fatalf("expected 1 model call (critic only), got %d", got)
	}

	devTasks := f.tasks.byRole(types.RoleDeveloper)
	if len(devTasks) != 1 || devTasks[0].Status != types.TaskCompleted {
		t.Fatalf("expected one completed developer task, got %+v", devTasks)
	}
	criticTasks := f.tasks.byRole(types.RoleCritic)
	if len(criticTasks) != 1 || criticTasks[0].Status != types.TaskCompleted {
		t.Fatalf("expected one completed critic task, got %+v", criticTasks)
	}

	tree, _ := f.trees.Load(context.Background())
	file := workspace.Find(tree, "KanbanBoard.tsx")
	if file == nil {
		t.Fatal("expected KanbanBoard.tsx in the tree")
	}
	if !strings.Contains(file.Content, "KanbanBoard") {
		t.Error("unexpected template content")
	}
	if f.runner.ActiveFile() != "KanbanBoard.tsx" {
		t.Errorf("active file = %q", f.runner.ActiveFile())
	}

	state := f.runner.previews.State()
	if state.CurrentDoc == "" {
		t.Error("expected a regenerated preview document")
	}
}

func TestTemplateSuppressedByOptions(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"filename":"Board.tsx","content":"export default function Board(){return (<div>custom</div>);}","explanation":"Built it."}`)
	f.provider.enqueue("review")

	err := f.runner.Submit(context.Background(), "Build a kanban board", "", types.RunOptions{Reasoning: true})
	if err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// Reasoning forces a real generation: developer + critic calls.
	if got := f.provider.callCount(); got != 2 {
		t.Fatalf("expected 2 model calls, got %d", got)
	}
	tree, _ := f.trees.Load(context.Background())
	if workspace.Find(tree, "Board.tsx") == nil {
		t.Error("expected generated Board.tsx")
	}
}

func TestTeamHandoffPause(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"tokens":"{\"primary\":\"#336699\"}","library":"tailwind","brief":"Calm, spacious."}`)

	opts := types.RunOptions{Target: types.TargetTeam, PauseHandoff: true}
	if err := f.runner.Submit(context.Background(), "Build a habit tracker", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// Only the designer ran before the pause.
	if got := f.provider.callCount(); got != 1 {
		t.Fatalf("expected 1 model call before pause, got %d", got)
	}
	if f.runner.Processing() {
		t.Error("processing flag must clear while paused")
	}
	if f.runner.Phase() != PhasePaused {
		t.Errorf("phase = %q", f.runner.Phase())
	}

	h := f.runner.Handoff()
	if h == nil {
		t.Fatal("expected a pending hand-off")
	}
	if h.UserRequest != "Build a habit tracker" {
		t.Errorf("hand-off request = %q", h.UserRequest)
	}
	if h.Design == nil || h.Design.Library != "tailwind" {
		t.Errorf("hand-off design = %+v", h.Design)
	}

	// theme.json was mirrored from the design tokens.
	tree, _ := f.trees.Load(context.Background())
	theme := workspace.Find(tree, workspace.ThemeFileName)
	if theme == nil || !strings.Contains(theme.Content, "#336699") {
		t.Errorf("expected mirrored theme.json, got %+v", theme)
	}

	// Resume consumes the hand-off exactly once and runs developer + critic.
	f.provider.enqueue(`{"filename":"Habits.tsx","content":"export default function Habits(){return (<div>habits</div>);}","explanation":"Done."}`)
	f.provider.enqueue("review")

	if err := f.runner.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	if got := f.provider.callCount(); got != 3 {
		t.Fatalf("expected 3 model calls after resume, got %d", got)
	}
	if f.runner.Handoff() != nil {
		t.Error("hand-off must be consumed")
	}
	if err := f.runner.Resume(context.Background()); err != ErrNoHandoff {
		t.Errorf("second resume should report ErrNoHandoff, got %v", err)
	}
}

func TestRunIDGroupsTasks(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"tokens":"{}","library":"none","brief":"Plain."}`)

	opts := types.RunOptions{Target: types.TargetTeam, PauseHandoff: true}
	if err := f.runner.Submit(context.Background(), "Build a habit tracker", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	designer := f.tasks.byRole(types.RoleDesigner)
	if len(designer) != 1 || designer[0].Run == "" {
		t.Fatalf("expected one designer task with a run id, got %+v", designer)
	}
	first := designer[0].Run

	// Resuming the hand-off continues the same run.
	f.provider.enqueue(`{"filename":"Habits.tsx","content":"export default function Habits(){return (<div>habits</div>);}","explanation":"Done."}`)
	f.provider.enqueue("review")
	if err := f.runner.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	for _, role := range []types.Role{types.RoleDeveloper, types.RoleCritic} {
		tasks := f.tasks.byRole(role)
		if len(tasks) != 1 || tasks[0].Run != first {
			t.Errorf("%s task should carry the paused run's id %s, got %+v", role, first, tasks)
		}
	}

	// A fresh submission starts a new run.
	if err := f.runner.Submit(context.Background(), "Build a todo list", "", types.RunOptions{}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	dev := f.tasks.byRole(types.RoleDeveloper)
	if len(dev) != 2 {
		t.Fatalf("expected a second developer task, got %d", len(dev))
	}
	if dev[1].Run == "" || dev[1].Run == first {
		t.Errorf("new submission must get its own run id, got %q", dev[1].Run)
	}
}

func TestDesignerTargetAlwaysPauses(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"tokens":"","library":"none","brief":"Minimal."}`)

	opts := types.RunOptions{Target: types.TargetDesigner, PauseHandoff: false}
	if err := f.runner.Submit(context.Background(), "Design a dashboard", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	if f.runner.Handoff() == nil {
		t.Error("designer target must always produce a hand-off")
	}
	if got := f.provider.callCount(); got != 1 {
		t.Errorf("expected only the designer call, got %d", got)
	}
}

func TestResumeReadsLiveThemeEdits(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"tokens":"{\"primary\":\"old\"}","library":"none","brief":"b"}`)

	opts := types.RunOptions{Target: types.TargetTeam, PauseHandoff: true}
	if err := f.runner.Submit(context.Background(), "Build a thing", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// User edits theme.json in the editor while paused.
	tree, _ := f.trees.Load(context.Background())
	edited := workspace.Upsert(tree, workspace.NewFile(workspace.ThemeFileName, `{"primary":"edited"}`))
	f.trees.Replace(context.Background(), edited)

	f.provider.enqueue(`{"filename":"T.tsx","content":"export default function T(){return (<div>t</div>);}","explanation":"ok"}`)
	f.provider.enqueue("review")

	if err := f.runner.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// The developer prompt must carry the edited tokens.
	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	var devPrompt string
	for _, call := range f.provider.calls {
		if strings.Contains(call.Config.SystemInstruction, "developer") {
			devPrompt = call.Prompt
		}
	}
	if !strings.Contains(devPrompt, "edited") {
		t.Errorf("developer prompt missing live-edited tokens:\n%s", devPrompt)
	}
}

func TestNewSubmissionOverwritesHandoff(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"tokens":"","library":"none","brief":"first"}`)

	opts := types.RunOptions{Target: types.TargetDesigner}
	if err := f.runner.Submit(context.Background(), "First request", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)
	if f.runner.Handoff() == nil {
		t.Fatal("expected pending hand-off")
	}

	f.provider.enqueue(`{"tokens":"","library":"none","brief":"second"}`)
	if err := f.runner.Submit(context.Background(), "Second request", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	h := f.runner.Handoff()
	if h == nil || h.UserRequest != "Second request" {
		t.Errorf("expected silently overwritten hand-off, got %+v", h)
	}
}

func TestStageFailureClassification(t *testing.T) {
	f := newFixture(t)
	payload := `{"error":{"code":403,"status":"PERMISSION_DENIED","message":"API key was reported as leaked and disabled"}}`
	f.provider.enqueueErr(&llm.APIError{StatusCode: 403, Body: payload})

	if err := f.runner.Submit(context.Background(), "Build a poll widget", "", types.RunOptions{}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	sys := f.messages.bySender(types.SenderSystem)
	if len(sys) != 1 {
		t.Fatalf("expected one system message, got %d", len(sys))
	}
	if !strings.Contains(sys[0].Text, "leaked") {
		t.Errorf("expected leaked-key remediation, got %q", sys[0].Text)
	}

	// The failed stage's task transitions to failed, not stuck active.
	devTasks := f.tasks.byRole(types.RoleDeveloper)
	if len(devTasks) != 1 || devTasks[0].Status != types.TaskFailed {
		t.Errorf("expected failed developer task, got %+v", devTasks)
	}

	// Critic never ran.
	if len(f.tasks.byRole(types.RoleCritic)) != 0 {
		t.Error("remaining stages must abort")
	}
}

func TestAbortKeepsCompletedStages(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue("a sensible plan")
	f.provider.enqueueErr(fmt.Errorf("connection reset"))

	opts := types.RunOptions{Target: types.TargetTeam}
	if err := f.runner.Submit(context.Background(), "Build a quiz app", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	designerTasks := f.tasks.byRole(types.RoleDesigner)
	if len(designerTasks) != 1 || designerTasks[0].Status != types.TaskCompleted {
		t.Fatalf("completed designer stage must survive the abort, got %+v", designerTasks)
	}
	archTasks := f.tasks.byRole(types.RoleArchitect)
	if len(archTasks) != 1 || archTasks[0].Status != types.TaskFailed {
		t.Fatalf("expected failed architect task, got %+v", archTasks)
	}
	if len(f.tasks.byRole(types.RoleDeveloper)) != 0 {
		t.Error("developer stage must not start after an abort")
	}
}

func TestMalformedDeveloperOutput(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue("Sure thing! Here's the component you asked for, no JSON though.")
	f.provider.enqueue("review")

	if err := f.runner.Submit(context.Background(), "Build a weather widget", "", types.RunOptions{}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	// The run continued: placeholder file created, critic still ran.
	tree, _ := f.trees.Load(context.Background())
	file := workspace.Find(tree, "App.tsx")
	if file == nil || !strings.Contains(file.Content, "Generation problem") {
		t.Fatalf("expected placeholder file content, got %+v", file)
	}

	sys := f.messages.bySender(types.SenderSystem)
	if len(sys) != 1 || !strings.Contains(sys[0].Text, "not valid JSON") {
		t.Errorf("expected explanatory system message, got %+v", sys)
	}

	devTasks := f.tasks.byRole(types.RoleDeveloper)
	if len(devTasks) != 1 || devTasks[0].Status != types.TaskCompleted {
		t.Errorf("malformed output is recoverable; task should complete, got %+v", devTasks)
	}
	if len(f.tasks.byRole(types.RoleCritic)) != 1 {
		t.Error("critic should still run after recovery")
	}
}

func TestMissingCredential(t *testing.T) {
	f := newFixture(t)
	credErr := fmt.Errorf("no API key found; set one of GEMINI_API_KEY, GOOGLE_API_KEY, API_KEY")
	f.runner.cfg.ResolveKey = func() (string, error) { return "", credErr }

	err := f.runner.Submit(context.Background(), "Build anything", "", types.RunOptions{})
	if err == nil {
		t.Fatal("expected credential error")
	}

	sys := f.messages.bySender(types.SenderSystem)
	if len(sys) != 1 || !strings.Contains(sys[0].Text, "GEMINI_API_KEY") {
		t.Errorf("expected system message naming candidates, got %+v", sys)
	}
	if f.provider.callCount() != 0 {
		t.Error("pipeline must not start without a credential")
	}
}

func TestEmptyRequest(t *testing.T) {
	f := newFixture(t)
	if err := f.runner.Submit(context.Background(), "   ", "", types.RunOptions{}); err != ErrEmptyRequest {
		t.Fatalf("expected ErrEmptyRequest, got %v", err)
	}
	if len(f.messages.bySender(types.SenderSystem)) != 1 {
		t.Error("expected one system message")
	}
	if f.provider.callCount() != 0 {
		t.Error("no stage may run for an empty request")
	}
}

func TestSingleRunInFlight(t *testing.T) {
	f := newFixture(t)
	f.provider.block = make(chan struct{})

	// Force a model call so the first run blocks inside a stage.
	opts := types.RunOptions{Target: types.TargetArchitect}
	if err := f.runner.Submit(context.Background(), "Plan a blog", "", opts); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := f.runner.Submit(context.Background(), "Another request", "", opts); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(f.provider.block)
	waitIdle(t, f.runner)
}

func TestArchitectTargetRunsAlone(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue("the plan")

	opts := types.RunOptions{Target: types.TargetArchitect}
	if err := f.runner.Submit(context.Background(), "Plan a store", "", opts); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	if got := f.provider.callCount(); got != 1 {
		t.Errorf("expected only the architect call, got %d", got)
	}
	if len(f.tasks.byRole(types.RoleDesigner)) != 0 {
		t.Error("designer must be skipped for the architect target")
	}
	if len(f.tasks.byRole(types.RoleCritic)) != 0 {
		t.Error("architect-only runs do not trigger the critic")
	}
}

func TestMessageOrdering(t *testing.T) {
	f := newFixture(t)
	f.provider.enqueue(`{"filename":"A.tsx","content":"export default function A(){return (<div>a</div>);}","explanation":"built"}`)
	f.provider.enqueue("review")

	if err := f.runner.Submit(context.Background(), "Build a tiny page", "", types.RunOptions{}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.runner)

	msgs, _ := f.messages.Tail(context.Background(), 0)
	if len(msgs) != 3 {
		t.Fatalf("expected user + developer + critic messages, got %d", len(msgs))
	}
	if msgs[0].Sender != types.SenderUser {
		t.Error("user message must come first")
	}
	if msgs[1].Role != types.RoleDeveloper || msgs[2].Role != types.RoleCritic {
		t.Errorf("stage messages out of order: %v then %v", msgs[1].Role, msgs[2].Role)
	}
}
