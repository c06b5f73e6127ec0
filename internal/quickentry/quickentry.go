// Package quickentry reads a ledger record out of free text with Gemini.
//
// The model only proposes positional arguments. They go through the same
// router path as typed commands, so anything it gets wrong is validated
// and re-prompted like user input.
package quickentry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

// ErrNoRecord is returned when the text does not describe a transaction.
var ErrNoRecord = errors.New("no transaction in text")

// generator is the part of genai.Models the extractor uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Extractor implements bot.QuickEntry.
type Extractor struct {
	models generator
	model  string
	now    func() time.Time
}

// New creates an Extractor backed by the Gemini API.
func New(ctx context.Context, apiKey, model string) (*Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("New: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("New: create genai client: %w", err)
	}
	return newExtractor(client.Models, model, time.Now), nil
}

func newExtractor(models generator, model string, now func() time.Time) *Extractor {
	if model == "" {
		model = DefaultModelName
	}
	return &Extractor{models: models, model: model, now: now}
}

// Extract asks the model for the record described by text.
func (e *Extractor) Extract(ctx context.Context, text string) (domain.Kind, []string, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil, ErrNoRecord
	}

	temperature := float32(0)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(e.now())},
				{Text: "Message:\n" + text},
			},
		},
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{Temperature: &temperature})
	if err != nil {
		return 0, nil, fmt.Errorf("Extract: generate content: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return 0, nil, fmt.Errorf("Extract: empty response from model")
	}
	return ParseResponse(raw)
}

func buildPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("You turn short chat messages into bookkeeping records.\n\n")
	fmt.Fprintf(&b, "Today is %s.\n\n", now.Format(domain.DateLayout))
	b.WriteString("Use ONLY these categories, by kind:\n")
	for _, kind := range domain.Kinds {
		labels := make([]string, 0)
		for _, info := range domain.CategorySet(kind) {
			labels = append(labels, info.Label)
		}
		fmt.Fprintf(&b, "- %s: %s\n", kind, strings.Join(labels, ", "))
	}
	b.WriteString("\nReturn one JSON object with these fields:\n" +
		"- \"kind\": \"expense\", \"income\", \"sale\" or null when the message is not a transaction\n" +
		"- \"category\": one of the category labels above for that kind\n" +
		"- \"amount\": number, never negative\n" +
		"- \"date\": string \"YYYY-MM-DD\" or null for today\n" +
		"- \"note\": string, may be empty\n" +
		"- \"counterparty\": string, the merchant, supplier or customer, may be empty\n\n" +
		"Return ONLY valid raw JSON.\n" +
		"Do NOT wrap the response in code fences.\n" +
		"Output must begin with \"{\" and end with \"}\".\n")
	return b.String()
}
