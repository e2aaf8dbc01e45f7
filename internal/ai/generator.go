package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Generator is the opaque AI content collaborator. Text and image
// generation jobs both go through it; the payload and result formats are
// the remote service's business.
type Generator interface {
	Generate(ctx context.Context, kind string, payload json.RawMessage) (json.RawMessage, error)
}

// Error is a failed generation call carrying the remote HTTP status so the
// executor can apply its generic transient/permanent classification.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai generation failed (status %d): %s", e.StatusCode, e.Message)
}
