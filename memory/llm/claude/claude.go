// Package claude implements the memory Generator on the Claude API. Each
// task is a single non-streaming message call with a task-specific system
// prompt; structured tasks request JSON and tolerate fenced output.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/strata/memory"
)

// Config configures the generator.
type Config struct {
	// Model is the Claude model ID (default: claude-sonnet-4-20250514).
	Model string

	// MaxTokens caps each response (default: 2048).
	MaxTokens int64
}

// Generator calls Claude for summarization, continuity checks, meta-info
// updates, profile analysis, and knowledge extraction.
type Generator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a generator over an existing Anthropic client.
func New(client *anthropic.Client, cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	return &Generator{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// complete runs one system+user exchange and returns the concatenated text.
func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String()), nil
}

// Summarize produces a theme/keywords/content summary for the page list.
func (g *Generator) Summarize(ctx context.Context, pages []*memory.Page) (memory.Summary, error) {
	text, err := g.complete(ctx, summarizeSystem, renderPages(pages))
	if err != nil {
		return memory.Summary{}, err
	}

	var sum memory.Summary
	if err := json.Unmarshal([]byte(stripFences(text)), &sum); err != nil {
		// Model occasionally returns prose despite the instructions.
		// Keep the text rather than losing the summary.
		log.Printf("[CLAUDE] Summary not valid JSON, using raw text: %v", err)
		return memory.Summary{Theme: "General", Content: text}, nil
	}
	if sum.Content == "" {
		sum.Content = text
	}
	return sum, nil
}

// CheckContinuity reports whether curr truly continues prev's topic.
func (g *Generator) CheckContinuity(ctx context.Context, prev, curr *memory.Page) (bool, error) {
	user := fmt.Sprintf("Previous exchange:\n%s\n\nCurrent exchange:\n%s", pageBlock(prev), pageBlock(curr))
	text, err := g.complete(ctx, continuitySystem, user)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(text), "true"), nil
}

// UpdateMeta merges the previous chain narrative with a new exchange.
func (g *Generator) UpdateMeta(ctx context.Context, lastMeta string, curr *memory.Page) (string, error) {
	if lastMeta == "" {
		lastMeta = "None"
	}
	user := fmt.Sprintf("Previous summary:\n%s\n\nNew exchange:\n%s", lastMeta, pageBlock(curr))
	return g.complete(ctx, metaSystem, user)
}

// AnalyzeProfile regenerates the profile narrative from new pages and the
// current profile text.
func (g *Generator) AnalyzeProfile(ctx context.Context, pages []*memory.Page, currentProfile string) (string, error) {
	user := fmt.Sprintf("Existing profile:\n%s\n\nNew conversation:\n%s", currentProfile, renderPages(pages))
	return g.complete(ctx, profileSystem, user)
}

// ExtractKnowledge pulls user-private and assistant knowledge out of pages.
func (g *Generator) ExtractKnowledge(ctx context.Context, pages []*memory.Page) (memory.Knowledge, error) {
	text, err := g.complete(ctx, knowledgeSystem, renderPages(pages))
	if err != nil {
		return memory.Knowledge{}, err
	}

	var kn memory.Knowledge
	if err := json.Unmarshal([]byte(stripFences(text)), &kn); err != nil {
		log.Printf("[CLAUDE] Knowledge not valid JSON, discarding: %v", err)
		return memory.Knowledge{Private: "None", AssistantKnowledge: "None"}, nil
	}
	return kn, nil
}

// renderPages formats a page list for a prompt, oldest first.
func renderPages(pages []*memory.Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageBlock(p))
	}
	return b.String()
}

func pageBlock(p *memory.Page) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", p.User, p.Assistant)
}

// stripFences removes a markdown code fence around a JSON body, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
