package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ResearchRadar/internal/ports"
	"ResearchRadar/internal/retry"
)

// ChatClient is the raw chat-completion call the task wrappers build on.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EmbeddingClient is the raw embeddings call, optional on a backend.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// MalformedResponseError marks LLM output that failed schema validation.
// It feeds the same retry path as a transient call failure.
type MalformedResponseError struct {
	Task   string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Task, e.Reason)
}

// Provider implements the required LLM capability set as stateless task
// wrappers: build a prompt, call once, parse strictly-typed JSON, retry
// on call or parse failure.
type Provider struct {
	chat    ChatClient
	retrier *retry.Retrier
	logger  *slog.Logger
}

var _ ports.LLMProvider = (*Provider)(nil)
var _ ports.ResultFilterer = (*Provider)(nil)

// embeddingProvider adds the optional embedding capability, detected by
// callers through a ports.Embedder type assertion.
type embeddingProvider struct {
	*Provider
	embed EmbeddingClient
}

var _ ports.Embedder = (*embeddingProvider)(nil)

func (p *embeddingProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return p.embed.Embed(ctx, texts)
}

// NewProvider wires the task wrappers. When embed is non-nil the result
// additionally satisfies ports.Embedder.
func NewProvider(chat ChatClient, embed EmbeddingClient, cfg retry.Config, logger *slog.Logger) ports.LLMProvider {
	p := &Provider{
		chat:    chat,
		retrier: retry.New(cfg, nil, logger),
		logger:  logger,
	}
	if embed != nil {
		return &embeddingProvider{Provider: p, embed: embed}
	}
	return p
}

// callJSON performs one retried chat round trip and decodes the reply
// into out, stripping markdown fences first.
func (p *Provider) callJSON(ctx context.Context, task, system, user string, out any, validate func() error) error {
	op := func() error {
		raw, err := p.chat.Complete(ctx, system, user)
		if err != nil {
			return fmt.Errorf("%s call: %w", task, err)
		}

		cleaned := stripFences(raw)
		if err := json.Unmarshal([]byte(cleaned), out); err != nil {
			return &MalformedResponseError{Task: task, Reason: err.Error()}
		}
		if validate != nil {
			if err := validate(); err != nil {
				var malformed *MalformedResponseError
				if errors.As(err, &malformed) {
					return err
				}
				return &MalformedResponseError{Task: task, Reason: err.Error()}
			}
		}
		return nil
	}

	return p.retrier.Do(ctx, op)
}

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func (p *Provider) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
