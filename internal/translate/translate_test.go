package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mgpai22/lipistudio/internal/subtitle"
)

// fakeCompleter upper-cases every item it is asked about.
type fakeCompleter struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	failOn   int // batch whose first index equals failOn fails; -1 disables
	mu       sync.Mutex
	prompts  []string
}

func (f *fakeCompleter) complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	start := strings.Index(prompt, "Input JSON:\n") + len("Input JSON:\n")
	end := strings.Index(prompt, "\n\nOutput the translated")
	var items []Item
	if err := json.Unmarshal([]byte(prompt[start:end]), &items); err != nil {
		return "", err
	}
	if len(items) > 0 && items[0].Index == f.failOn {
		return "", errors.New("rate limited")
	}

	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{Index: it.Index, Text: strings.ToUpper(it.Text)}
	}
	data, _ := json.Marshal(results)
	return "```json\n" + string(data) + "\n```", nil
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{Index: i, Text: fmt.Sprintf("line %d", i)}
	}
	return out
}

func TestTranslateBatches(t *testing.T) {
	fc := &fakeCompleter{failOn: -1}
	tr := newLLMTranslator(ProviderOpenAI, fc, Options{TargetLanguage: "English", BatchSize: 3, Concurrency: 2})

	results, err := tr.Translate(context.Background(), items(10))
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Text != fmt.Sprintf("LINE %d", i) {
			t.Errorf("results[%d] = %+v", i, r)
		}
	}
	if got := fc.calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4 batches", got)
	}
	if got := fc.maxSeen.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
}

func TestTranslateBatchFailure(t *testing.T) {
	fc := &fakeCompleter{failOn: 3}
	tr := newLLMTranslator(ProviderGemini, fc, Options{TargetLanguage: "English", BatchSize: 3})

	_, err := tr.Translate(context.Background(), items(9))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Translate() error = %v, want batch failure", err)
	}
}

func TestTranslateEmpty(t *testing.T) {
	tr := newLLMTranslator(ProviderOpenAI, &fakeCompleter{failOn: -1}, Options{TargetLanguage: "English"})
	results, err := tr.Translate(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("Translate(nil) = %v, %v", results, err)
	}
}

func TestSegments(t *testing.T) {
	tr := newLLMTranslator(ProviderAnthropic, &fakeCompleter{failOn: -1}, Options{TargetLanguage: "English"})
	in := []subtitle.Segment{
		{ID: "1", StartTime: 0, EndTime: 4, Text: "hello dosto"},
		{ID: "2", StartTime: 4, EndTime: 8, Text: "kaise ho"},
	}

	out, err := Segments(context.Background(), tr, in)
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if out[0].Text != "HELLO DOSTO" || out[1].Text != "KAISE HO" {
		t.Errorf("texts = %q, %q", out[0].Text, out[1].Text)
	}
	if out[1].ID != "2" || out[1].EndTime != 8 {
		t.Errorf("ids/timings changed: %+v", out[1])
	}
	if in[0].Text != "hello dosto" {
		t.Error("input slice was modified")
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	if _, err := Factory(ctx, ProviderOpenAI, "key", Options{}); err == nil {
		t.Error("expected error for missing target language")
	}
	if _, err := Factory(ctx, Provider("unknown"), "key", Options{TargetLanguage: "French"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := Factory(ctx, ProviderOpenAI, "", Options{TargetLanguage: "French"}); err == nil {
		t.Error("expected error for missing key")
	}

	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		tr, err := Factory(ctx, p, "fake-key", Options{TargetLanguage: "English"})
		if err != nil {
			t.Errorf("Factory(%s) error = %v", p, err)
			continue
		}
		if tr.Provider() != p {
			t.Errorf("Provider() = %s, want %s", tr.Provider(), p)
		}
	}
}

func TestExtractResults(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "plain valid array",
			input:     `[{"index": 0, "text": "Hello"}, {"index": 1, "text": "Bye"}]`,
			wantCount: 2,
		},
		{
			name: "preamble and trailing text",
			input: `Here is the translation:
			[{"index": 0, "text": "Bonjour"}]
			I hope this helps!`,
			wantCount: 1,
		},
		{
			name:      "wrapper with translations key",
			input:     `{"translations": [{"index": 0, "text": "Übersetzt"}]}`,
			wantCount: 1,
		},
		{name: "empty array", input: `[]`, wantErr: true},
		{name: "no JSON", input: `plain text`, wantErr: true},
		{name: "invalid JSON", input: `[{"index": 0, "text": "x"`, wantErr: true},
		{name: "empty text", input: `[{"index": 0, "text": ""}]`, wantErr: true},
		{
			name:      "ASS newline escape",
			input:     `[{"index": 0, "text": "first line\Nsecond line"}]`,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := extractResults(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractResults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(results) != tt.wantCount {
				t.Errorf("got %d results, want %d", len(results), tt.wantCount)
			}
		})
	}
}

func TestFixInvalidEscapes(t *testing.T) {
	got := fixInvalidEscapes(`a\Nb \"q\" \n`)
	want := `a\\Nb \"q\" \n`
	if got != want {
		t.Errorf("fixInvalidEscapes() = %q, want %q", got, want)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(
		Options{InputLanguage: "Hindi", TargetLanguage: "English", Prompt: "keep slang"},
		[]Item{{Index: 0, Text: "namaste"}},
	)

	for _, want := range []string{"Hindi subtitle texts to English", "keep slang", `"namaste"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	noInput := BuildPrompt(Options{TargetLanguage: "English"}, nil)
	if !strings.HasPrefix(noInput, "Translate the following subtitle texts to English.") {
		t.Errorf("prompt without input language = %q", noInput[:60])
	}
}
