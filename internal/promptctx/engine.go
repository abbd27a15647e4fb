// Package promptctx assembles token-budgeted prompts for each agent stage.
// Every context fragment (request, plan, design tokens, project graph,
// preview documents) is capped so prompts cannot grow without bound as the
// conversation accumulates.
package promptctx

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/user/foundry/internal/types"
)

// Per-fragment token budgets.
const (
	requestBudget = 2000
	planBudget    = 3000
	designBudget  = 1500
	graphBudget   = 1500
	previewBudget = 2500
)

// Engine counts and truncates prompt fragments with a real tokenizer.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates an engine using the tokenizer for the given model, falling
// back to cl100k_base for unknown models.
func New(model string) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{tokenizer: enc}, nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// Truncate caps text at maxTokens, appending an ellipsis marker when cut.
func (e *Engine) Truncate(text string, maxTokens int) string {
	ids := e.tokenizer.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return e.tokenizer.Decode(ids[:maxTokens]) + "\n[truncated]"
}

// StageInput carries the sanitized context fragments for one stage prompt.
type StageInput struct {
	UserRequest string
	Plan        string
	Design      *types.DesignContext
	GraphJSON   string
	PrevPreview string
	CurrPreview string
}

// BuildPrompt assembles the user-facing prompt body for a stage, applying
// the per-fragment budgets.
func (e *Engine) BuildPrompt(role types.Role, in StageInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Request\n%s\n", e.Truncate(strings.TrimSpace(in.UserRequest), requestBudget))

	if in.Plan != "" {
		fmt.Fprintf(&b, "\n## Plan so far\n%s\n", e.Truncate(in.Plan, planBudget))
	}
	if in.Design != nil {
		design := fmt.Sprintf("library: %s\nbrief: %s\ntokens: %s", in.Design.Library, in.Design.Brief, in.Design.Tokens)
		fmt.Fprintf(&b, "\n## Design context\n%s\n", e.Truncate(design, designBudget))
	}
	if in.GraphJSON != "" {
		fmt.Fprintf(&b, "\n## Project files\n%s\n", e.Truncate(in.GraphJSON, graphBudget))
	}

	if role == types.RoleCritic {
		if in.PrevPreview != "" {
			fmt.Fprintf(&b, "\n## Previous preview\n%s\n", e.Truncate(PreviewMarkdown(in.PrevPreview), previewBudget))
		}
		if in.CurrPreview != "" {
			fmt.Fprintf(&b, "\n## Current preview\n%s\n", e.Truncate(PreviewMarkdown(in.CurrPreview), previewBudget))
		}
	}

	return b.String()
}

// PreviewMarkdown converts a rendered preview document to markdown so the
// critic sees content, not HTML scaffolding. Conversion failures fall back
// to the raw document.
func PreviewMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil || strings.TrimSpace(md) == "" {
		return html
	}
	return md
}
