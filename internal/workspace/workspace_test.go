package workspace

import (
	"strings"
	"testing"

	"github.com/user/foundry/internal/types"
)

func TestUpsertIntoSrcFolder(t *testing.T) {
	root := DefaultTree()
	updated := Upsert(root, NewFile("Board.tsx", "export default null;"))

	src := findFolder(updated, "src")
	if src == nil {
		t.Fatal("src folder missing")
	}
	var found bool
	for _, c := range src.Children {
		if c.Name == "Board.tsx" {
			found = true
		}
	}
	if !found {
		t.Error("expected Board.tsx inside src")
	}

	// Input tree untouched.
	if Find(root, "Board.tsx") != nil {
		t.Error("Upsert must not mutate the input tree")
	}
}

func TestUpsertReplaceByName(t *testing.T) {
	root := DefaultTree()
	v1 := Upsert(root, NewFile("App.tsx", "one"))
	v2 := Upsert(v1, NewFile("App.tsx", "two"))

	file := Find(v2, "App.tsx")
	if file == nil || file.Content != "two" {
		t.Fatalf("expected last writer to win, got %+v", file)
	}

	src := findFolder(v2, "src")
	count := 0
	for _, c := range src.Children {
		if c.Name == "App.tsx" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected a single App.tsx entry, got %d", count)
	}
}

func TestUpsertUpdatesRootLevelFile(t *testing.T) {
	root := DefaultTree()
	updated := Upsert(root, NewFile("index.html", "<html>edited</html>"))

	var copies []*types.FileNode
	var walk func(n *types.FileNode)
	walk = func(n *types.FileNode) {
		if n.Name == "index.html" && n.Kind == types.NodeFile {
			copies = append(copies, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(updated)

	if len(copies) != 1 {
		t.Fatalf("expected one index.html after the edit, found %d", len(copies))
	}
	if copies[0].Content != "<html>edited</html>" {
		t.Errorf("expected updated content, got %q", copies[0].Content)
	}
	src := findFolder(updated, "src")
	for _, c := range src.Children {
		if c.Name == "index.html" {
			t.Error("root-level edit must not add a copy under src")
		}
	}
}

func TestUpsertRootFallback(t *testing.T) {
	root := &types.FileNode{Name: "project", Kind: types.NodeFolder}
	updated := Upsert(root, NewFile("main.ts", "x"))
	if len(updated.Children) != 1 || updated.Children[0].Name != "main.ts" {
		t.Errorf("expected file appended at root, got %+v", updated.Children)
	}
}

func TestMirrorTheme(t *testing.T) {
	root := DefaultTree()
	design := &types.DesignContext{Tokens: `{"primary":"#336699"}`, Library: "tailwind"}

	updated := MirrorTheme(root, design)
	theme := Find(updated, ThemeFileName)
	if theme == nil {
		t.Fatal("theme.json not mirrored into tree")
	}
	if theme.Content != design.Tokens {
		t.Errorf("theme content = %q", theme.Content)
	}
	if theme.Language != "json" {
		t.Errorf("theme language = %q", theme.Language)
	}

	// A second mirror replaces, not duplicates.
	design.Tokens = `{"primary":"#000"}`
	again := MirrorTheme(updated, design)
	theme = Find(again, ThemeFileName)
	if theme.Content != design.Tokens {
		t.Errorf("expected refreshed tokens, got %q", theme.Content)
	}
}

func TestGraphOmitsContent(t *testing.T) {
	root := DefaultTree()
	out := GraphJSON(root)

	if strings.Contains(out, "Describe the app") {
		t.Error("graph must omit file content")
	}
	if !strings.Contains(out, `"name":"App.tsx"`) {
		t.Errorf("graph missing file entry: %s", out)
	}
	if !strings.Contains(out, `"kind":"folder"`) {
		t.Errorf("graph missing folder kind: %s", out)
	}
	if !strings.Contains(out, `"language":"typescriptreact"`) {
		t.Errorf("graph missing language tag: %s", out)
	}
}

func TestLanguageFor(t *testing.T) {
	tests := map[string]string{
		"App.tsx":    "typescriptreact",
		"util.ts":    "typescript",
		"theme.json": "json",
		"style.css":  "css",
		"page.HTML":  "html",
		"Makefile":   "",
	}
	for name, want := range tests {
		if got := LanguageFor(name); got != want {
			t.Errorf("LanguageFor(%q) = %q, want %q", name, got, want)
		}
	}
}
