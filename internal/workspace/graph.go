package workspace

import (
	"encoding/json"

	"github.com/user/foundry/internal/types"
)

// Descriptor is the reduced tree shape injected into agent prompts for
// import-consistency grounding. Content is deliberately omitted.
type Descriptor struct {
	Name     string        `json:"name"`
	Kind     types.NodeKind `json:"kind"`
	Language string        `json:"language,omitempty"`
	Children []*Descriptor `json:"children,omitempty"`
}

// Graph maps the tree to its descriptor form.
func Graph(root *types.FileNode) *Descriptor {
	if root == nil {
		return nil
	}
	d := &Descriptor{
		Name:     root.Name,
		Kind:     root.Kind,
		Language: root.Language,
	}
	for _, c := range root.Children {
		d.Children = append(d.Children, Graph(c))
	}
	return d
}

// GraphJSON serializes the descriptor tree for prompt injection.
func GraphJSON(root *types.FileNode) string {
	g := Graph(root)
	if g == nil {
		return "{}"
	}
	data, err := json.Marshal(g)
	if err != nil {
		return "{}"
	}
	return string(data)
}
