package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic/agents"
	"google.golang.org/genai"
)

//go:embed config/summarizer-prompt.md
var defaultSummarizerPrompt string

//go:embed config/summary-schema.json
var defaultSummarySchema string

const articlesVariable = "{{.articles}}"

// Summary is the summarizer's rewrite of one article
type Summary struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Summarizer condenses a batch of articles into one summary per article, in order
type Summarizer interface {
	Summarize(ctx context.Context, articles []Article) ([]Summary, error)
}

// buildSummaryPrompt fills the prompt template with the numbered article bodies
func buildSummaryPrompt(template string, articles []Article) (string, error) {
	if !strings.Contains(template, articlesVariable) {
		return "", fmt.Errorf("summarizer prompt template must contain %s variable", articlesVariable)
	}

	parts := make([]string, 0, len(articles))
	for i, article := range articles {
		parts = append(parts, fmt.Sprintf("Article %d:\n%s", i+1, article.Body))
	}
	return strings.ReplaceAll(template, articlesVariable, strings.Join(parts, "\n\n")), nil
}

// parseSummaries decodes a JSON array of summaries, tolerating markdown code fences
func parseSummaries(text string) ([]Summary, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var summaries []Summary
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &summaries); err != nil {
		return nil, fmt.Errorf("failed to parse summarizer response: %w", err)
	}
	return summaries, nil
}

// geminiModels is the slice of the genai client the summarizer uses
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSummarizer summarizes through the Gemini API with a JSON response schema
type GeminiSummarizer struct {
	models      geminiModels
	model       string
	prompt      string
	maxTokens   int32
	temperature float32
}

// NewGeminiSummarizer creates a Gemini-backed summarizer
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, maxTokens int, temperature float64) (*GeminiSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if client.Models == nil {
		return nil, fmt.Errorf("creating gemini client: models client is nil")
	}

	return &GeminiSummarizer{
		models:      client.Models,
		model:       model,
		prompt:      defaultSummarizerPrompt,
		maxTokens:   int32(maxTokens),
		temperature: float32(temperature),
	}, nil
}

// Summarize implements Summarizer
func (g *GeminiSummarizer) Summarize(ctx context.Context, articles []Article) ([]Summary, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	prompt, err := buildSummaryPrompt(g.prompt, articles)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   summarySchema(),
	}
	if g.temperature > 0 {
		temperature := g.temperature
		config.Temperature = &temperature
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini summarize: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini summarize: empty response")
	}
	return parseSummaries(resp.Text())
}

func summarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {Type: genai.TypeString},
				"body":  {Type: genai.TypeString},
			},
			Required: []string{"title", "body"},
		},
	}
}

// chatFunc sends one prompt to a fresh Claude chat and returns the reply text
type chatFunc func(prompt string, opts *agents.ChatOptions) (string, error)

// ClaudeSummarizer summarizes through Anthropic using llmkit chat agents
type ClaudeSummarizer struct {
	chat        chatFunc
	prompt      string
	schema      string
	maxTokens   int
	temperature float64
}

// NewClaudeSummarizer creates an Anthropic-backed summarizer
func NewClaudeSummarizer(apiKey string, maxTokens int, temperature float64) (*ClaudeSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	chat := func(prompt string, opts *agents.ChatOptions) (string, error) {
		// a new agent per batch keeps summaries from sharing conversation history
		agent, err := agents.New(apiKey)
		if err != nil {
			return "", fmt.Errorf("creating summarizer agent: %w", err)
		}
		response, err := agent.Chat(prompt, opts)
		if err != nil {
			return "", err
		}
		return response.Text, nil
	}

	return &ClaudeSummarizer{
		chat:        chat,
		prompt:      defaultSummarizerPrompt,
		schema:      strings.TrimSpace(defaultSummarySchema),
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Summarize implements Summarizer. The llmkit call takes no context, so a
// cancelled ctx abandons the in-flight call instead of waiting for it.
func (c *ClaudeSummarizer) Summarize(ctx context.Context, articles []Article) ([]Summary, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	prompt, err := buildSummaryPrompt(c.prompt, articles)
	if err != nil {
		return nil, err
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.chat(prompt, &agents.ChatOptions{
			Schema:      c.schema,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("claude summarize: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("claude summarize: %w", r.err)
		}
		return parseSummaries(r.text)
	}
}
