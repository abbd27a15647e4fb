// Package workspace holds the pure operations on the workspace file tree:
// lookup, immutable upsert, the prompt-facing project graph, and the
// theme.json mirror. Persistence lives in internal/state.
package workspace

import (
	"path/filepath"
	"strings"

	"github.com/user/foundry/internal/types"
)

// ThemeFileName is the pseudo-file mirroring the designer's DesignContext.
const ThemeFileName = "theme.json"

// srcFolderName is where generated components land when the folder exists.
const srcFolderName = "src"

// Find returns the first file node with the given name, depth-first.
func Find(root *types.FileNode, name string) *types.FileNode {
	if root == nil {
		return nil
	}
	if root.Name == name && root.Kind == types.NodeFile {
		return root
	}
	for _, c := range root.Children {
		if found := Find(c, name); found != nil {
			return found
		}
	}
	return nil
}

// findFolder returns the first folder with the given name, depth-first.
func findFolder(root *types.FileNode, name string) *types.FileNode {
	if root == nil {
		return nil
	}
	if root.Name == name && root.Kind == types.NodeFolder {
		return root
	}
	for _, c := range root.Children {
		if found := findFolder(c, name); found != nil {
			return found
		}
	}
	return nil
}

// Upsert returns a new tree with the file written by name, last-writer-wins.
// An existing file with the same name is replaced in place wherever it lives;
// only a name unseen anywhere in the tree is newly placed, into the src
// folder when one exists and at the root otherwise. The input tree is not
// modified.
func Upsert(root *types.FileNode, file *types.FileNode) *types.FileNode {
	if root == nil {
		return &types.FileNode{
			Name:     "project",
			Kind:     types.NodeFolder,
			Children: []*types.FileNode{file},
		}
	}

	out := root.Clone()
	if replaceNamed(out, file) {
		return out
	}

	target := findFolder(out, srcFolderName)
	if target == nil {
		target = out
	}
	target.Children = append(target.Children, file)
	return out
}

// replaceNamed swaps the first file entry matching the new file's name,
// searching the whole tree depth-first. Reports whether a swap happened.
func replaceNamed(node *types.FileNode, file *types.FileNode) bool {
	for i, c := range node.Children {
		if c.Kind == types.NodeFile && c.Name == file.Name {
			node.Children[i] = file
			return true
		}
		if replaceNamed(c, file) {
			return true
		}
	}
	return false
}

// NewFile builds a file node with a language tag inferred from the name.
func NewFile(name, content string) *types.FileNode {
	return &types.FileNode{
		Name:     name,
		Kind:     types.NodeFile,
		Content:  content,
		Language: LanguageFor(name),
		New:      true,
	}
}

// LanguageFor maps a file extension to its editor language tag.
func LanguageFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tsx", ".jsx":
		return "typescriptreact"
	case ".ts":
		return "typescript"
	case ".js":
		return "javascript"
	case ".json":
		return "json"
	case ".css":
		return "css"
	case ".html":
		return "html"
	case ".md":
		return "markdown"
	default:
		return ""
	}
}

// MirrorTheme returns a new tree with theme.json holding the design tokens.
func MirrorTheme(root *types.FileNode, design *types.DesignContext) *types.FileNode {
	file := NewFile(ThemeFileName, design.Tokens)
	file.New = false
	return Upsert(root, file)
}

// DefaultTree seeds a fresh workspace.
func DefaultTree() *types.FileNode {
	return &types.FileNode{
		Name: "project",
		Kind: types.NodeFolder,
		Open: true,
		Children: []*types.FileNode{
			{
				Name: srcFolderName,
				Kind: types.NodeFolder,
				Open: true,
				Children: []*types.FileNode{
					{
						Name:     "App.tsx",
						Kind:     types.NodeFile,
						Language: "typescriptreact",
						Content:  "export default function App() {\n  return (<div>Describe the app you want to build.</div>);\n}\n",
					},
				},
			},
			{
				Name:     "index.html",
				Kind:     types.NodeFile,
				Language: "html",
				Content:  "<!DOCTYPE html>\n<html>\n<body><div id=\"root\"></div></body>\n</html>\n",
			},
		},
	}
}
