package pipeline

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/user/foundry/pkg/llm"
)

// ErrorClass buckets a failed generation call for user-facing remediation.
type ErrorClass string

const (
	ClassGeneric          ErrorClass = "generic"
	ClassPermissionDenied ErrorClass = "permission_denied"
	ClassLeakedKey        ErrorClass = "leaked_key"
)

// errorPayload is the shape probed in service error bodies, both top-level
// and nested under an "error" field.
type errorPayload struct {
	Code    int           `json:"code"`
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Error   *errorPayload `json:"error,omitempty"`
}

// Classify inspects a generation error and returns its class plus the
// user-facing explanation to post as a system message. Unrecognized shapes
// degrade to a generic abort message.
func Classify(err error) (ErrorClass, string) {
	payload := extractPayload(err)

	message := payload.Message
	status := strings.ToUpper(payload.Status)
	lower := strings.ToLower(message)

	denied := status == "PERMISSION_DENIED" || payload.Code == 403

	switch {
	case strings.Contains(lower, "leaked"),
		denied && strings.Contains(lower, "api key"):
		return ClassLeakedKey, "Mission aborted: the API key was reported as leaked and has been revoked. Generate a fresh key and update your environment before retrying."
	case denied:
		return ClassPermissionDenied, "Mission aborted: the model service denied the request. Check that your API key is valid and has access to the requested model."
	case message != "":
		return ClassGeneric, "Mission aborted: " + message
	default:
		return ClassGeneric, "Mission aborted."
	}
}

// extractPayload pulls the best-effort error payload out of err: the raw
// API body when available, the error text otherwise.
func extractPayload(err error) errorPayload {
	if err == nil {
		return errorPayload{}
	}

	raw := err.Error()
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		raw = apiErr.Body
	}

	var p errorPayload
	if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr == nil {
		if p.Error != nil {
			return *p.Error
		}
		if p.Code != 0 || p.Status != "" || p.Message != "" {
			return p
		}
	}

	// Not JSON: fall back to the raw text as the message.
	return errorPayload{Message: strings.TrimSpace(raw)}
}
