// Package engine adapts a text-completion backend into the planning,
// implementation, and review contracts. The backends are interchangeable
// behind the Completer interface.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

// Completer is a minimal text-in text-out language model call.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const planSystemPrompt = `You are a senior software engineer planning a code change.
Respond with a JSON object only: {"summary": "<one line>", "steps": ["<step>", ...]}.`

const implementSystemPrompt = `You are a senior software engineer implementing a planned code change.
Respond with a JSON object only: {"branch": "<branch-name>", "description": "<what changed>", "files_changed": <int>}.`

const reviewSystemPrompt = `You are a senior software engineer reviewing a proposed code change.
Respond with a JSON object only: {"approved": <bool>, "comments": ["<comment>", ...]}.`

// Engine implements the planner, implementer, and reviewer contracts on top
// of any Completer.
type Engine struct {
	completer Completer
	logger    zerolog.Logger
}

// New wraps a completion backend.
func New(c Completer, logger zerolog.Logger) *Engine {
	return &Engine{
		completer: c,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Plan asks the backend for an implementation plan.
func (e *Engine) Plan(ctx context.Context, input string) (*provider.Plan, error) {
	text, err := e.completer.Complete(ctx, planSystemPrompt, input)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	var plan provider.Plan
	if err := decodeJSONBlock(text, &plan); err != nil {
		// Model ignored the format. Salvage: first line as summary,
		// bullet lines as steps.
		e.logger.Warn().Err(err).Msg("plan response was not JSON, parsing as text")
		plan = planFromText(text)
	}
	if plan.Summary == "" {
		return nil, fmt.Errorf("plan: empty response")
	}
	return &plan, nil
}

// Implement asks the backend to carry out a change and summarize it.
func (e *Engine) Implement(ctx context.Context, input string) (*provider.PatchSummary, error) {
	text, err := e.completer.Complete(ctx, implementSystemPrompt, input)
	if err != nil {
		return nil, fmt.Errorf("implement: %w", err)
	}

	var patch provider.PatchSummary
	if err := decodeJSONBlock(text, &patch); err != nil {
		return nil, fmt.Errorf("implement: unparseable response: %w", err)
	}
	return &patch, nil
}

// Review asks the backend to evaluate a change.
func (e *Engine) Review(ctx context.Context, input string) (*provider.ReviewResult, error) {
	text, err := e.completer.Complete(ctx, reviewSystemPrompt, input)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	var result provider.ReviewResult
	if err := decodeJSONBlock(text, &result); err != nil {
		return nil, fmt.Errorf("review: unparseable response: %w", err)
	}
	return &result, nil
}

// decodeJSONBlock unmarshals a response that may be wrapped in markdown code
// fences or surrounded by prose.
func decodeJSONBlock(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in response")
		}
		trimmed = trimmed[start : end+1]
	}
	return json.Unmarshal([]byte(trimmed), v)
}

func planFromText(text string) provider.Plan {
	var plan provider.Plan
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if plan.Summary == "" {
			plan.Summary = line
			continue
		}
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line != "" {
			plan.Steps = append(plan.Steps, line)
		}
	}
	return plan
}
