package llm

// Request describes one generation call: which model, the prompt text, and
// the per-call configuration bag.
type Request struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Config Config `json:"config"`
}

// Config carries per-request generation settings.
type Config struct {
	// ResponseFormat is a MIME type hint, e.g. "application/json".
	ResponseFormat string `json:"response_format,omitempty"`
	// SystemInstruction is the role-specific system prompt.
	SystemInstruction string `json:"system_instruction,omitempty"`
	// Reasoning enables the model's extended thinking budget.
	Reasoning bool `json:"reasoning,omitempty"`
	// UseSearch enables the model's web-search grounding tool.
	UseSearch bool `json:"use_search,omitempty"`
}

// Citation is a title/URL pair for a grounding source the model consulted.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Response is the model's generated text plus any grounding citations.
type Response struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}
