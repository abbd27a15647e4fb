package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/foundry/pkg/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// thinkingBudget is the token budget granted when extended reasoning is
// requested. -1 lets the backend pick.
const thinkingBudget = -1

// Client implements llm.Provider against the Gemini generateContent API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Gemini client authenticated with the given API key.
func New(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// NewWithBaseURL creates a client targeting a non-default endpoint.
// Used by tests to point at a local fake server.
func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

// generateResponse is the generateContent response body.
type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content           content            `json:"content"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web,omitempty"`
}

// Generate sends one generateContent request and returns the generated text
// plus any grounding citations.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
	}
	if req.Config.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.Config.SystemInstruction}}}
	}

	gc := &generationConfig{}
	if req.Config.ResponseFormat != "" {
		gc.ResponseMimeType = req.Config.ResponseFormat
	}
	if req.Config.Reasoning {
		gc.ThinkingConfig = &thinkingConfig{ThinkingBudget: thinkingBudget}
	}
	if gc.ResponseMimeType != "" || gc.ThinkingConfig != nil {
		body.GenerationConfig = gc
	}

	if req.Config.UseSearch {
		body.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	cand := gr.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	out := &llm.Response{Text: text.String()}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			out.Citations = append(out.Citations, llm.Citation{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		}
	}
	return out, nil
}
