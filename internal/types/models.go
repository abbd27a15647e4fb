// internal/types/models.go
package types

import (
	"time"
)

// NodeKind distinguishes files from folders in the workspace tree.
type NodeKind string

const (
	NodeFile   NodeKind = "file"
	NodeFolder NodeKind = "folder"
)

// FileNode is one entry in the workspace tree. Folders carry Children and
// never Content; files carry Content and never Children. Names are unique
// within a parent. The tree is mutated by replacing nodes, not in place.
type FileNode struct {
	Name     string      `json:"name"`
	Kind     NodeKind    `json:"kind"`
	Content  string      `json:"content,omitempty"`
	Language string      `json:"language,omitempty"`
	Children []*FileNode `json:"children,omitempty"`

	// Transient UI flags mirrored for the shell; not semantically load-bearing.
	Open bool `json:"open,omitempty"`
	New  bool `json:"new,omitempty"`
}

// Clone returns a deep copy of the node and its subtree.
func (n *FileNode) Clone() *FileNode {
	if n == nil {
		return nil
	}
	out := *n
	if n.Children != nil {
		out.Children = make([]*FileNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// Role identifies an agent persona within a run.
type Role string

const (
	RoleDesigner  Role = "designer"
	RoleArchitect Role = "architect"
	RoleDeveloper Role = "developer"
	RoleCritic    Role = "critic"
)

// Citation is a title/URL pair returned when the model used a search tool.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ChatMessage is one entry in the append-only conversation log. Messages are
// never mutated after creation.
type ChatMessage struct {
	ID        MessageID  `json:"id"`
	Sender    Sender     `json:"sender"`
	Role      Role       `json:"role,omitempty"`
	Text      string     `json:"text"`
	At        time.Time  `json:"at"`
	ImageData string     `json:"image_data,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// TaskStatus is the lifecycle state of an AgentTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentTask tracks one stage of a run. Created active at stage start and
// transitioned to completed or failed at stage end. Tasks belonging to the
// same submission share a Run id; a resumed hand-off keeps the id of the
// run that paused.
type AgentTask struct {
	ID        TaskID     `json:"id"`
	Run       RunID      `json:"run_id,omitempty"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	Role      Role       `json:"assigned_to"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// DesignContext is the designer stage's output: theme tokens, a UI library
// identifier, and a free-text brief. It is mirrored into the workspace tree
// as theme.json whenever it changes.
type DesignContext struct {
	Tokens  string `json:"tokens"`
	Library string `json:"library"`
	Brief   string `json:"brief"`
}

// RunTarget selects which stages a run executes.
type RunTarget string

const (
	TargetTeam      RunTarget = "team"
	TargetDesigner  RunTarget = "designer"
	TargetArchitect RunTarget = "architect"
	TargetDeveloper RunTarget = "developer"
)

// RunOptions are the per-request toggles carried through a run.
type RunOptions struct {
	Target       RunTarget `json:"target"`
	Reasoning    bool      `json:"reasoning"`
	UseSearch    bool      `json:"use_search"`
	PauseHandoff bool      `json:"pause_handoff"`
}

// PendingHandoff is the stored context of a paused run awaiting an explicit
// resume of the developer stage. At most one may be outstanding; a new
// top-level request overwrites it silently.
type PendingHandoff struct {
	Run           RunID          `json:"run_id"`
	UserRequest   string         `json:"user_request"`
	ArchitectPlan string         `json:"architect_plan"`
	Options       RunOptions     `json:"options"`
	Design        *DesignContext `json:"design,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PreviewState holds the current and previous rendered preview documents,
// the time of the last regeneration, and the state snapshot they embed.
// Document and snapshot are regenerated together.
type PreviewState struct {
	CurrentDoc  string            `json:"current_doc"`
	PreviousDoc string            `json:"previous_doc"`
	LastRun     time.Time         `json:"last_run"`
	Snapshot    map[string]string `json:"snapshot,omitempty"`
}
