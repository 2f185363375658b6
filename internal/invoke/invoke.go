// Package invoke is the single chokepoint for calls to the hosted model
// service. Every call walks an ordered cascade of model variants and accepts
// the first response that passes its sanity checks.
package invoke

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/kutub-ai/cli/internal/ollama"
	"go.uber.org/zap"
)

// Task identifies a logical model call. Components depend on tasks, never on
// model names; the cascade for each task lives here.
type Task string

const (
	TaskTranslate      Task = "translate"
	TaskClassify       Task = "classify"
	TaskExpandKeywords Task = "expand_keywords"
	TaskCorrectText    Task = "correct_text"
	TaskOCR            Task = "ocr"
	TaskGenerateAnswer Task = "generate_answer"
	TaskEmbed          Task = "embed"
)

// ErrAllModelsFailed is returned when every model in a cascade has been tried
// and none produced an acceptable result.
var ErrAllModelsFailed = errors.New("all models in cascade failed")

// Result is a successful cascade outcome.
type Result struct {
	Text     string
	Model    string
	Attempts int
}

// Client is the slice of the model service the invoker needs.
type Client interface {
	Generate(ctx context.Context, req *ollama.GenerateRequest) (string, error)
	GenerateStream(ctx context.Context, req *ollama.GenerateRequest, onChunk func(string)) error
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Invoker cascades model calls. One instance is built at startup and shared;
// it holds no per-request state.
type Invoker struct {
	client       Client
	textModels   []string
	visionModels []string
	embedModels  []string
	embedDim     int
	logger       *zap.Logger
}

// New creates an invoker with the given cascades. logger may be nil.
func New(client Client, textModels, visionModels, embedModels []string, embedDim int, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		client:       client,
		textModels:   textModels,
		visionModels: visionModels,
		embedModels:  embedModels,
		embedDim:     embedDim,
		logger:       logger,
	}
}

type completeOptions struct {
	accept func(string) error
	images []string
}

// Option configures a Complete call.
type Option func(*completeOptions)

// WithAccept installs a task-specific validator; a rejection moves the
// cascade to the next model instead of failing the call.
func WithAccept(f func(string) error) Option {
	return func(o *completeOptions) { o.accept = f }
}

// WithImages attaches base64-encoded images (vision tasks).
func WithImages(images []string) Option {
	return func(o *completeOptions) { o.images = images }
}

// Complete walks the cascade for the task sequentially and returns the first
// acceptable non-empty response. Attempts are never concurrent: later models
// are more expensive and only paid for on demonstrated failure.
func (inv *Invoker) Complete(ctx context.Context, task Task, prompt string, opts ...Option) (Result, error) {
	options := &completeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cascade := inv.textModels
	if task == TaskOCR {
		cascade = inv.visionModels
	}
	if len(cascade) == 0 {
		return Result{}, fmt.Errorf("task %s: no models configured: %w", task, ErrAllModelsFailed)
	}

	attempts := 0
	var lastErr error
	for _, model := range cascade {
		attempts++
		text, err := inv.client.Generate(ctx, &ollama.GenerateRequest{
			Model:  model,
			Prompt: prompt,
			Images: options.images,
		})
		if err != nil {
			lastErr = err
			inv.logger.Warn("model attempt failed",
				zap.String("task", string(task)),
				zap.String("model", model),
				zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = fmt.Errorf("model %s returned empty response", model)
			inv.logger.Warn("model returned empty response",
				zap.String("task", string(task)),
				zap.String("model", model))
			continue
		}
		if options.accept != nil {
			if err := options.accept(text); err != nil {
				lastErr = err
				inv.logger.Warn("model response rejected",
					zap.String("task", string(task)),
					zap.String("model", model),
					zap.Error(err))
				continue
			}
		}
		return Result{Text: text, Model: model, Attempts: attempts}, nil
	}

	if lastErr == nil {
		lastErr = ErrAllModelsFailed
	}
	return Result{Attempts: attempts}, fmt.Errorf("task %s: %w", task, errors.Join(ErrAllModelsFailed, lastErr))
}

// Embed embeds text through the embedding cascade, enforcing the configured
// dimensionality. There is no safe fallback: exhaustion is a terminal error.
func (inv *Invoker) Embed(ctx context.Context, text string) ([]float32, string, error) {
	var lastErr error
	for _, model := range inv.embedModels {
		vec, err := inv.client.Embed(ctx, model, text)
		if err != nil {
			lastErr = err
			inv.logger.Warn("embedding attempt failed",
				zap.String("model", model),
				zap.Error(err))
			continue
		}
		if inv.embedDim > 0 && len(vec) != inv.embedDim {
			lastErr = fmt.Errorf("model %s returned %d-dim embedding, want %d", model, len(vec), inv.embedDim)
			inv.logger.Warn("embedding dimension mismatch",
				zap.String("model", model),
				zap.Int("got", len(vec)),
				zap.Int("want", inv.embedDim))
			continue
		}
		return vec, model, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no embedding models configured")
	}
	return nil, "", fmt.Errorf("embed: %w", errors.Join(ErrAllModelsFailed, lastErr))
}

// EmbedDim returns the fixed embedding dimensionality.
func (inv *Invoker) EmbedDim() int {
	return inv.embedDim
}

// OCRPage submits a rendered page image to the vision cascade and returns the
// transcribed text. No fallback: a page that cannot be read is skipped by the
// caller.
func (inv *Invoker) OCRPage(ctx context.Context, png []byte) (Result, error) {
	encoded := base64.StdEncoding.EncodeToString(png)
	prompt := "Transcribe all text visible on this scanned book page exactly as written, " +
		"preserving the original language and line order. Return only the transcribed text."
	return inv.Complete(ctx, TaskOCR, prompt, WithImages([]string{encoded}))
}

// GenerateAnswer runs the answer-generation cascade. Exhaustion is terminal.
func (inv *Invoker) GenerateAnswer(ctx context.Context, prompt string) (Result, error) {
	return inv.Complete(ctx, TaskGenerateAnswer, prompt)
}

// GenerateAnswerStream streams an answer, cascading to the next model only
// when a model fails before producing any output.
func (inv *Invoker) GenerateAnswerStream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	var lastErr error
	for _, model := range inv.textModels {
		started := false
		err := inv.client.GenerateStream(ctx, &ollama.GenerateRequest{
			Model:  model,
			Prompt: prompt,
		}, func(chunk string) {
			started = true
			onChunk(chunk)
		})
		if err == nil {
			return model, nil
		}
		if started {
			// Partial output already reached the caller; retrying would
			// duplicate it.
			return model, err
		}
		lastErr = err
		inv.logger.Warn("streaming attempt failed",
			zap.String("model", model),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = errors.New("no text models configured")
	}
	return "", fmt.Errorf("generate answer: %w: %v", ErrAllModelsFailed, lastErr)
}
