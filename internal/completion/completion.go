// Package completion adapts an eino chat model to the single request/response
// shape used by the intent and answer stages: one system instruction, one user
// message, a sampling temperature and an output ceiling.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("completion: empty response")

// Request is one call to the remote completion service.
type Request struct {
	// System is the system instruction.
	System string
	// User is the user message.
	User string
	// Temperature is the sampling temperature.
	Temperature float32
	// MaxTokens caps the generated output.
	MaxTokens int
	// JSON asks for a single JSON object. Models built with
	// provider.IntentTuning already request it from the backend; the flag is
	// carried so fakes and logs can see the caller's intent.
	JSON bool
}

// Completer is the remote completion service as seen by the pipeline stages.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ChatCompleter implements Completer on top of an eino chat model.
// It is safe for concurrent use when the underlying model is.
type ChatCompleter struct {
	model model.BaseChatModel
	name  string
}

// New wraps m. name labels the model in errors (e.g. "intent", "answer").
func New(m model.BaseChatModel, name string) (*ChatCompleter, error) {
	if m == nil {
		return nil, fmt.Errorf("completion: %s model must not be nil", name)
	}
	return &ChatCompleter{model: m, name: name}, nil
}

// Complete sends the system and user messages and returns the reply text.
func (c *ChatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.User))

	var opts []model.Option
	opts = append(opts, model.WithTemperature(req.Temperature))
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("completion: %s generate: %w", c.name, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w from %s model", ErrEmptyResponse, c.name)
	}
	return resp.Content, nil
}
