// Package pipeline sequences the agent stages (designer, architect,
// developer, critic) for one user request, including the hand-off pause,
// the template short-circuit, and error classification. Stages execute
// strictly sequentially; a single in-flight run is enforced and new
// submissions are rejected, never queued.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/foundry/internal/extract"
	"github.com/user/foundry/internal/preview"
	"github.com/user/foundry/internal/promptctx"
	"github.com/user/foundry/internal/types"
	"github.com/user/foundry/internal/workspace"
	"github.com/user/foundry/pkg/llm"
)

// Phase is the runner's observable state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDesigning    Phase = "designing"
	PhaseArchitecting Phase = "architecting"
	PhasePaused       Phase = "paused-for-handoff"
	PhaseDeveloping   Phase = "developing"
	PhaseCritiquing   Phase = "critiquing"
)

var (
	// ErrBusy is returned while a run is in flight. The in-flight call is
	// never aborted; the caller must wait and resend.
	ErrBusy = errors.New("a run is already in flight")
	// ErrEmptyRequest is returned when neither text nor an image was sent.
	ErrEmptyRequest = errors.New("request needs text or an image")
	// ErrNoHandoff is returned by Resume when no hand-off is pending.
	ErrNoHandoff = errors.New("no pending hand-off")
)

// developerPlaceholder is substituted as file content when the developer's
// output cannot be parsed, so the user still gets an artifact to inspect.
const developerPlaceholder = `export default function App() {
  return (
    <div role="alert">
      <h1>Generation problem</h1>
      <p>The developer agent returned output that could not be parsed. Resend your request to try again.</p>
    </div>
  );
}
`

// Event is pushed to the shell whenever the runner changes observable state.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Config holds the runner's model settings and credential gate.
type Config struct {
	Model string
	// ResolveKey is probed before every run; its error text is surfaced to
	// the user when no credential is available.
	ResolveKey func() (string, error)
}

// Runner drives the agent stage sequence.
type Runner struct {
	provider llm.Provider
	engine   *promptctx.Engine
	messages types.MessageStore
	tasks    types.TaskStore
	trees    types.WorkspaceStore
	previews *preview.Manager
	cfg      Config
	notify   func(Event)

	gate     *semaphore.Weighted
	inFlight atomic.Int32

	mu         sync.Mutex
	phase      Phase
	runID      types.RunID
	handoff    *types.PendingHandoff
	design     *types.DesignContext
	activeFile string
}

// New creates a Runner wired to the given collaborators.
func New(
	provider llm.Provider,
	engine *promptctx.Engine,
	messages types.MessageStore,
	tasks types.TaskStore,
	trees types.WorkspaceStore,
	previews *preview.Manager,
	cfg Config,
) *Runner {
	return &Runner{
		provider: provider,
		engine:   engine,
		messages: messages,
		tasks:    tasks,
		trees:    trees,
		previews: previews,
		cfg:      cfg,
		gate:     semaphore.NewWeighted(1),
		phase:    PhaseIdle,
	}
}

// SetNotify installs the event callback used to push state to the shell.
func (r *Runner) SetNotify(fn func(Event)) {
	r.notify = fn
}

// Phase returns the runner's current phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Processing reports whether a run is in flight.
func (r *Runner) Processing() bool {
	return r.inFlight.Load() > 0
}

// Handoff returns the pending hand-off, or nil.
func (r *Runner) Handoff() *types.PendingHandoff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoff
}

// ActiveFile returns the name of the last file produced by a run.
func (r *Runner) ActiveFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeFile
}

// WaitIdle blocks until no run is in flight or the timeout expires.
// Returns true if idle.
func (r *Runner) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.inFlight.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Submit validates the request and starts a run. The user message is
// recorded before Submit returns; the stages execute asynchronously. Any
// pending hand-off is silently overwritten.
func (r *Runner) Submit(ctx context.Context, text, imageData string, opts types.RunOptions) error {
	text = strings.TrimSpace(text)
	if opts.Target == "" {
		opts.Target = types.TargetDeveloper
	}
	if text == "" && imageData == "" {
		r.systemMessage(ctx, "Nothing to build yet: describe the app you want, or attach an image.")
		return ErrEmptyRequest
	}

	if _, err := r.cfg.ResolveKey(); err != nil {
		r.systemMessage(ctx, err.Error())
		return err
	}

	if !r.gate.TryAcquire(1) {
		return ErrBusy
	}

	r.appendMessage(ctx, &types.ChatMessage{
		ID:        types.NewMessageID(),
		Sender:    types.SenderUser,
		Text:      text,
		ImageData: imageData,
		At:        time.Now(),
	})

	r.mu.Lock()
	r.handoff = nil
	r.runID = types.NewRunID()
	r.mu.Unlock()

	r.inFlight.Add(1)
	go r.run(text, opts)
	return nil
}

// Resume consumes the pending hand-off and re-enters the developer stage
// with the stored context, re-reading live-edited design tokens first.
func (r *Runner) Resume(ctx context.Context) error {
	if !r.gate.TryAcquire(1) {
		return ErrBusy
	}

	r.mu.Lock()
	h := r.handoff
	r.handoff = nil
	if h != nil {
		// The resumed stages belong to the run that paused.
		r.runID = h.Run
	}
	r.mu.Unlock()

	if h == nil {
		r.gate.Release(1)
		return ErrNoHandoff
	}

	// Pick up design-token edits made in the editor while paused.
	if h.Design != nil {
		if tree, err := r.trees.Load(ctx); err == nil {
			if theme := workspace.Find(tree, workspace.ThemeFileName); theme != nil {
				h.Design.Tokens = theme.Content
			}
		}
	}

	r.emit(Event{Type: "handoff", Payload: nil})
	r.inFlight.Add(1)
	go r.resumeRun(h)
	return nil
}

// run executes the stage sequence for one submission.
func (r *Runner) run(text string, opts types.RunOptions) {
	ctx := context.Background()
	defer r.finish()

	runDesigner := opts.Target == types.TargetTeam || opts.Target == types.TargetDesigner
	runArchitect := opts.Target == types.TargetTeam || opts.Target == types.TargetArchitect
	runDeveloper := opts.Target == types.TargetTeam || opts.Target == types.TargetDeveloper

	var design *types.DesignContext
	var plan string

	if runDesigner {
		r.setPhase(PhaseDesigning)
		d, err := r.designerStage(ctx, text, opts)
		if err != nil {
			r.abort(ctx, err)
			return
		}
		design = d
		r.mu.Lock()
		r.design = d
		r.mu.Unlock()

		// A lone designer run has no following stage in this run, so it
		// always pauses; a team run pauses only when asked to.
		if opts.Target == types.TargetDesigner || opts.PauseHandoff {
			r.storeHandoff(ctx, text, plan, opts, design)
			return
		}
	} else {
		r.mu.Lock()
		design = r.design
		r.mu.Unlock()
	}

	if runArchitect {
		r.setPhase(PhaseArchitecting)
		p, err := r.architectStage(ctx, text, design)
		if err != nil {
			r.abort(ctx, err)
			return
		}
		plan = p
		if opts.Target == types.TargetArchitect {
			return
		}
	}

	if runDeveloper {
		if err := r.developerStage(ctx, text, plan, design, opts); err != nil {
			r.abort(ctx, err)
			return
		}
		if err := r.criticStage(ctx, text, plan, design); err != nil {
			r.abort(ctx, err)
			return
		}
	}
}

// resumeRun picks up a consumed hand-off at the developer stage.
func (r *Runner) resumeRun(h *types.PendingHandoff) {
	ctx := context.Background()
	defer r.finish()

	if err := r.developerStage(ctx, h.UserRequest, h.ArchitectPlan, h.Design, h.Options); err != nil {
		r.abort(ctx, err)
		return
	}
	if err := r.criticStage(ctx, h.UserRequest, h.ArchitectPlan, h.Design); err != nil {
		r.abort(ctx, err)
	}
}

func (r *Runner) designerStage(ctx context.Context, text string, opts types.RunOptions) (*types.DesignContext, error) {
	task := r.beginTask(ctx, types.RoleDesigner, "Design direction")

	prompt := r.engine.BuildPrompt(types.RoleDesigner, promptctx.StageInput{
		UserRequest: text,
		GraphJSON:   r.graphJSON(ctx),
	})
	resp, err := r.provider.Generate(ctx, &llm.Request{
		Model:  r.cfg.Model,
		Prompt: prompt,
		Config: llm.Config{
			ResponseFormat:    "application/json",
			SystemInstruction: promptctx.Instruction(types.RoleDesigner),
			Reasoning:         opts.Reasoning,
			UseSearch:         opts.UseSearch,
		},
	})
	if err != nil {
		r.endTask(ctx, task, types.TaskFailed)
		return nil, err
	}

	design := &types.DesignContext{}
	if jsonErr := json.Unmarshal([]byte(extract.JSONObject(resp.Text)), design); jsonErr != nil {
		// Unparseable design output is recoverable: keep the raw text as
		// the brief so the later stages still have direction.
		design = &types.DesignContext{Brief: strings.TrimSpace(resp.Text)}
	}

	msg := design.Brief
	if msg == "" {
		msg = "Design direction ready."
	}
	r.agentMessage(ctx, types.RoleDesigner, msg, resp.Citations)
	r.endTask(ctx, task, types.TaskCompleted)

	if design.Tokens != "" {
		r.mirrorTheme(ctx, design)
	}
	return design, nil
}

func (r *Runner) architectStage(ctx context.Context, text string, design *types.DesignContext) (string, error) {
	task := r.beginTask(ctx, types.RoleArchitect, "Implementation plan")

	prompt := r.engine.BuildPrompt(types.RoleArchitect, promptctx.StageInput{
		UserRequest: text,
		Design:      design,
		GraphJSON:   r.graphJSON(ctx),
	})
	resp, err := r.provider.Generate(ctx, &llm.Request{
		Model:  r.cfg.Model,
		Prompt: prompt,
		Config: llm.Config{
			SystemInstruction: promptctx.Instruction(types.RoleArchitect),
		},
	})
	if err != nil {
		r.endTask(ctx, task, types.TaskFailed)
		return "", err
	}

	r.agentMessage(ctx, types.RoleArchitect, resp.Text, resp.Citations)
	r.endTask(ctx, task, types.TaskCompleted)
	return resp.Text, nil
}

// developerOutput is the contract the developer stage demands of the model.
type developerOutput struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	Explanation string `json:"explanation"`
}

func (r *Runner) developerStage(ctx context.Context, text, plan string, design *types.DesignContext, opts types.RunOptions) error {
	r.setPhase(PhaseDeveloping)
	task := r.beginTask(ctx, types.RoleDeveloper, "Implement component")

	var out developerOutput
	var citations []llm.Citation

	tpl := MatchTemplate(text)
	if tpl != nil && !opts.Reasoning && !opts.UseSearch {
		out = developerOutput{
			Filename:    tpl.FileName,
			Content:     tpl.Content,
			Explanation: fmt.Sprintf("Done! I built the %s for you. Open the preview to try it.", tpl.Name),
		}
	} else {
		prompt := r.engine.BuildPrompt(types.RoleDeveloper, promptctx.StageInput{
			UserRequest: text,
			Plan:        plan,
			Design:      design,
			GraphJSON:   r.graphJSON(ctx),
		})
		resp, err := r.provider.Generate(ctx, &llm.Request{
			Model:  r.cfg.Model,
			Prompt: prompt,
			Config: llm.Config{
				ResponseFormat:    "application/json",
				SystemInstruction: promptctx.Instruction(types.RoleDeveloper),
				Reasoning:         opts.Reasoning,
				UseSearch:         opts.UseSearch,
			},
		})
		if err != nil {
			r.endTask(ctx, task, types.TaskFailed)
			return err
		}
		citations = resp.Citations

		if jsonErr := json.Unmarshal([]byte(extract.JSONObject(resp.Text)), &out); jsonErr != nil || out.Content == "" {
			// Malformed output never aborts the run: the user still gets
			// a file to inspect.
			out = developerOutput{
				Filename:    "App.tsx",
				Content:     developerPlaceholder,
				Explanation: "My output came back malformed, so I created a placeholder file instead.",
			}
			r.systemMessage(ctx, "The developer's response was not valid JSON; a placeholder component was written in its place.")
		}
	}

	if out.Filename == "" {
		out.Filename = "App.tsx"
	}

	r.agentMessage(ctx, types.RoleDeveloper, out.Explanation, citations)
	r.endTask(ctx, task, types.TaskCompleted)

	file := workspace.NewFile(out.Filename, out.Content)
	r.placeFile(ctx, file)
	r.previews.Regenerate(ctx, file)
	return nil
}

func (r *Runner) criticStage(ctx context.Context, text, plan string, design *types.DesignContext) error {
	r.setPhase(PhaseCritiquing)
	task := r.beginTask(ctx, types.RoleCritic, "Review build")

	pv := r.previews.State()
	prompt := r.engine.BuildPrompt(types.RoleCritic, promptctx.StageInput{
		UserRequest: text,
		Plan:        plan,
		Design:      design,
		PrevPreview: pv.PreviousDoc,
		CurrPreview: pv.CurrentDoc,
	})
	resp, err := r.provider.Generate(ctx, &llm.Request{
		Model:  r.cfg.Model,
		Prompt: prompt,
		Config: llm.Config{
			SystemInstruction: promptctx.Instruction(types.RoleCritic),
		},
	})
	if err != nil {
		r.endTask(ctx, task, types.TaskFailed)
		return err
	}

	r.agentMessage(ctx, types.RoleCritic, resp.Text, resp.Citations)
	r.endTask(ctx, task, types.TaskCompleted)
	return nil
}

// placeFile inserts the produced file into the tree and makes it active.
func (r *Runner) placeFile(ctx context.Context, file *types.FileNode) {
	tree, err := r.trees.Load(ctx)
	if err != nil {
		slog.Warn("load workspace failed", "error", err)
	}
	updated := workspace.Upsert(tree, file)
	if err := r.trees.Replace(ctx, updated); err != nil {
		slog.Warn("persist workspace failed", "error", err)
	}

	r.mu.Lock()
	r.activeFile = file.Name
	r.mu.Unlock()

	r.emit(Event{Type: "workspace", Payload: updated})
	r.emit(Event{Type: "open_preview", Payload: file.Name})
}

// storeHandoff records the pause point and stops the run.
func (r *Runner) storeHandoff(ctx context.Context, text, plan string, opts types.RunOptions, design *types.DesignContext) {
	h := &types.PendingHandoff{
		Run:           r.currentRun(),
		UserRequest:   text,
		ArchitectPlan: plan,
		Options:       opts,
		Design:        design,
		CreatedAt:     time.Now(),
	}

	r.mu.Lock()
	r.handoff = h
	r.phase = PhasePaused
	r.mu.Unlock()

	r.systemMessage(ctx, "Design hand-off ready. Review the design (and edit theme.json if you like), then resume to let the developer build it.")
	r.emit(Event{Type: "handoff", Payload: h})
	r.emit(Event{Type: "phase", Payload: PhasePaused})
}

func (r *Runner) mirrorTheme(ctx context.Context, design *types.DesignContext) {
	tree, err := r.trees.Load(ctx)
	if err != nil {
		slog.Warn("load workspace failed", "error", err)
	}
	updated := workspace.MirrorTheme(tree, design)
	if err := r.trees.Replace(ctx, updated); err != nil {
		slog.Warn("persist theme failed", "error", err)
	}
	r.emit(Event{Type: "workspace", Payload: updated})
}

// abort posts the classified explanation for a failed stage. The failed
// stage's task was already transitioned; completed stages keep their
// messages and tasks.
func (r *Runner) abort(ctx context.Context, err error) {
	class, msg := Classify(err)
	slog.Error("run aborted", "class", class, "error", err)
	r.systemMessage(ctx, msg)
}

func (r *Runner) finish() {
	r.mu.Lock()
	if r.phase != PhasePaused {
		r.phase = PhaseIdle
	}
	phase := r.phase
	r.mu.Unlock()

	r.gate.Release(1)
	r.inFlight.Add(-1)
	r.emit(Event{Type: "phase", Payload: phase})
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
	r.emit(Event{Type: "phase", Payload: p})
}

func (r *Runner) graphJSON(ctx context.Context) string {
	tree, err := r.trees.Load(ctx)
	if err != nil {
		return "{}"
	}
	return workspace.GraphJSON(tree)
}

// currentRun returns the id of the run in flight.
func (r *Runner) currentRun() types.RunID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Runner) beginTask(ctx context.Context, role types.Role, title string) *types.AgentTask {
	task := &types.AgentTask{
		ID:        types.NewTaskID(),
		Run:       r.currentRun(),
		Title:     title,
		Status:    types.TaskActive,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := r.tasks.Add(ctx, task); err != nil {
		slog.Warn("record task failed", "role", role, "error", err)
	}
	r.emit(Event{Type: "task", Payload: task})
	return task
}

func (r *Runner) endTask(ctx context.Context, task *types.AgentTask, status types.TaskStatus) {
	now := time.Now()
	task.Status = status
	task.EndedAt = &now
	if err := r.tasks.SetStatus(ctx, task.ID, status); err != nil {
		slog.Warn("update task failed", "task", task.ID, "error", err)
	}
	r.emit(Event{Type: "task", Payload: task})
}

func (r *Runner) agentMessage(ctx context.Context, role types.Role, text string, citations []llm.Citation) {
	msg := &types.ChatMessage{
		ID:     types.NewMessageID(),
		Sender: types.SenderAgent,
		Role:   role,
		Text:   text,
		At:     time.Now(),
	}
	for _, c := range citations {
		msg.Citations = append(msg.Citations, types.Citation{Title: c.Title, URI: c.URI})
	}
	r.appendMessage(ctx, msg)
}

func (r *Runner) systemMessage(ctx context.Context, text string) {
	r.appendMessage(ctx, &types.ChatMessage{
		ID:     types.NewMessageID(),
		Sender: types.SenderSystem,
		Text:   text,
		At:     time.Now(),
	})
}

func (r *Runner) appendMessage(ctx context.Context, msg *types.ChatMessage) {
	if err := r.messages.Append(ctx, msg); err != nil {
		slog.Warn("record message failed", "error", err)
	}
	r.emit(Event{Type: "message", Payload: msg})
}

func (r *Runner) emit(ev Event) {
	if r.notify != nil {
		r.notify(ev)
	}
}
