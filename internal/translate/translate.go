// Package translate rewrites segment texts into another language with an LLM.
// Segments are sent in batches of indexed JSON items; timings never change.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mgpai22/lipistudio/internal/subtitle"
)

const (
	DefaultBatchSize   = 50
	DefaultConcurrency = 3
)

// single text item to translate
type Item struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// translated text item
type Result struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// interface for text translation
type Translator interface {
	Translate(ctx context.Context, items []Item) ([]Result, error)
}

// translation service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

type Options struct {
	InputLanguage  string
	TargetLanguage string
	Model          string
	Prompt         string
	BatchSize      int // items per API request (default 50)
	Concurrency    int // batches in flight (default 3)
}

// completer sends one prompt and returns the model's text reply
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// LLMTranslator batches items and fans batches out to a worker pool.
type LLMTranslator struct {
	provider Provider
	backend  completer
	options  Options
}

func newLLMTranslator(provider Provider, backend completer, opts Options) *LLMTranslator {
	return &LLMTranslator{provider: provider, backend: backend, options: opts}
}

// creates Translator based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (*LLMTranslator, error) {
	if opts.TargetLanguage == "" {
		return nil, fmt.Errorf("target language is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	var (
		backend completer
		err     error
	)
	switch Provider(strings.ToLower(string(provider))) {
	case ProviderGemini:
		backend, err = newGeminiCompleter(ctx, apiKey, opts.Model)
	case ProviderOpenAI:
		backend = newOpenAICompleter(apiKey, opts.Model)
	case ProviderAnthropic:
		backend = newAnthropicCompleter(apiKey, opts.Model)
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	return newLLMTranslator(provider, backend, opts), nil
}

func (t *LLMTranslator) Provider() Provider {
	return t.provider
}

func (t *LLMTranslator) batchSize() int {
	if t.options.BatchSize > 0 {
		return t.options.BatchSize
	}
	return DefaultBatchSize
}

func (t *LLMTranslator) concurrency() int {
	if t.options.Concurrency > 0 {
		return t.options.Concurrency
	}
	return DefaultConcurrency
}

// Translate splits items into batches and runs up to Concurrency of them at
// once. The first failing batch cancels the rest.
func (t *LLMTranslator) Translate(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return []Result{}, nil
	}

	batchSize := t.batchSize()
	var batches [][]Item
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		batches = append(batches, items[i:end])
	}

	if len(batches) == 1 {
		return t.translateBatch(ctx, batches[0])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type batchResult struct {
		Index   int
		Results []Result
		Error   error
	}

	workChan := make(chan int)
	resultChan := make(chan batchResult, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < t.concurrency() && i < len(batches); i++ {
		wg.Go(func() {
			for batchIdx := range workChan {
				if ctx.Err() != nil {
					return
				}
				results, err := t.translateBatch(ctx, batches[batchIdx])
				if err != nil {
					cancel()
				}
				resultChan <- batchResult{Index: batchIdx, Results: results, Error: err}
			}
		})
	}

	go func() {
		defer close(workChan)
		for i := range batches {
			select {
			case <-ctx.Done():
				return
			case workChan <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var (
		all      []Result
		firstErr error
		done     int
	)
	for result := range resultChan {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d failed: %w", result.Index, result.Error)
			}
			continue
		}
		done++
		all = append(all, result.Results...)
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if done != len(batches) {
		return nil, fmt.Errorf("translation interrupted: %w", context.Cause(ctx))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})

	return all, nil
}

func (t *LLMTranslator) translateBatch(ctx context.Context, items []Item) ([]Result, error) {
	text, err := t.backend.complete(ctx, BuildPrompt(t.options, items))
	if err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	if text == "" {
		return nil, fmt.Errorf("no text in %s response", t.provider)
	}

	text = cleanJSONResponse(text)
	results, err := extractResults(text)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse JSON response: %w (response: %s)",
			err,
			truncateString(text, 200),
		)
	}

	if len(results) != len(items) {
		return nil, fmt.Errorf("expected %d results, got %d", len(items), len(results))
	}

	return results, nil
}

// Segments translates segment texts, keeping ids and timings. Results are
// matched back by list index.
func Segments(ctx context.Context, tr Translator, segments []subtitle.Segment) ([]subtitle.Segment, error) {
	items := make([]Item, len(segments))
	for i, seg := range segments {
		items[i] = Item{Index: i, Text: seg.Text}
	}

	results, err := tr.Translate(ctx, items)
	if err != nil {
		return nil, err
	}

	out := make([]subtitle.Segment, len(segments))
	copy(out, segments)
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(out) {
			return nil, fmt.Errorf("translation returned unknown index %d", r.Index)
		}
		out[r.Index].Text = r.Text
	}

	return out, nil
}

// BuildPrompt creates the translation prompt for LLM providers
func BuildPrompt(opts Options, items []Item) string {
	var sb strings.Builder

	if opts.InputLanguage != "" {
		sb.WriteString(fmt.Sprintf(
			"Translate the following %s subtitle texts to %s.\n\n",
			opts.InputLanguage,
			opts.TargetLanguage,
		))
	} else {
		sb.WriteString(fmt.Sprintf(
			"Translate the following subtitle texts to %s.\n\n",
			opts.TargetLanguage,
		))
	}

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Translate ONLY the text content, preserving the meaning.\n")
	sb.WriteString("2. Romanized Hindi (Hinglish) input is common; treat it as Hindi.\n")
	sb.WriteString("3. Return ONLY a JSON array with the same structure.\n")
	sb.WriteString("4. Each object must have 'index' and 'text' fields.\n")
	sb.WriteString("5. The 'index' values must match the input indices exactly.\n")
	sb.WriteString("6. Do not add any explanation or markdown formatting.\n\n")

	if opts.Prompt != "" {
		sb.WriteString(fmt.Sprintf("Additional instructions: %s\n\n", opts.Prompt))
	}

	sb.WriteString("Input JSON:\n")

	inputJSON, _ := json.MarshalIndent(items, "", "  ")
	sb.Write(inputJSON)

	sb.WriteString("\n\nOutput the translated JSON array only:")

	return sb.String()
}
