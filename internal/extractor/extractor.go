package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Generator is a hosted language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Enricher fills gaps in a record from local knowledge.
type Enricher interface {
	Enrich(rec *Record)
}

// Options tunes an Extractor. Zero values use the package defaults.
type Options struct {
	TargetLanguage   string
	FallbackLanguage string
	Timeout          time.Duration // 0 means no deadline
	Enricher         Enricher
}

// Extractor runs one sentence through prompt, model and parser.
type Extractor struct {
	llm      Generator
	prompts  PromptBuilder
	parser   *Parser
	enricher Enricher
	timeout  time.Duration
	logger   *slog.Logger
}

func New(llm Generator, opts Options, logger *slog.Logger) *Extractor {
	return &Extractor{
		llm:      llm,
		prompts:  PromptBuilder{TargetLanguage: opts.TargetLanguage},
		parser:   NewParser(opts.FallbackLanguage),
		enricher: opts.Enricher,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Parser exposes the decoder so the store reads rows with the same rules.
func (e *Extractor) Parser() *Parser { return e.parser }

// Analyze sends text to the model and returns the validated record.
// Model output problems and timeouts come back as *IngestError; transport
// failures are wrapped as-is. Nothing is retried.
func (e *Extractor) Analyze(ctx context.Context, text string) (*Record, error) {
	prompt, err := e.prompts.Build(text)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Info("analyzing sentence", "text_len", len(text))

	raw, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewIngestError(KindTimeout, fmt.Sprintf("model did not answer within %s", e.timeout), err)
		}
		return nil, fmt.Errorf("llm analysis: %w", err)
	}

	rec, err := e.parser.Parse(raw, text)
	if err != nil {
		e.logger.Error("failed to parse analysis response",
			"error", err,
			"raw", excerpt(raw),
		)
		return nil, err
	}

	if e.enricher != nil {
		e.enricher.Enrich(rec)
	}

	e.logger.Info("analysis complete",
		"language", rec.Language,
		"tokens", len(rec.Structure),
		"degraded", rec.Degraded,
	)
	return rec, nil
}
