package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// implements Transcriber using Google Gemini
type GeminiTranscriber struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiTranscriber(ctx context.Context, apiKey string, opts Options) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiTranscriber{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, media Media) (*Response, error) {
	if media.Body == nil {
		return nil, ErrNoInput
	}

	path, cleanup, err := spool(media)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	uploadedFile, err := t.client.Files.UploadFromPath(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	defer func() {
		_, _ = t.client.Files.Delete(ctx, uploadedFile.Name, nil)
	}()

	parts := []*genai.Part{
		genai.NewPartFromText(t.buildPrompt()),
		genai.NewPartFromURI(uploadedFile.URI, uploadedFile.MIMEType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	if result == nil || result.Text() == "" {
		return nil, fmt.Errorf("%w: no text in Gemini response", ErrBadResponse)
	}

	return geminiResponse(result.Text())
}

// spool writes the media to a temp file, keeping the extension so the upload
// gets a sensible MIME type.
func spool(media Media) (string, func(), error) {
	ext := filepath.Ext(media.Name)
	if ext == "" {
		ext = ".bin"
	}

	f, err := os.CreateTemp("", "lipistudio-upload-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := io.Copy(f, media.Body); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}

	return f.Name(), cleanup, nil
}

func (t *GeminiTranscriber) buildPrompt() string {
	var sb strings.Builder

	sb.WriteString("Generate a detailed transcript of this audio. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers). ")

	if t.options.Language != "" {
		sb.WriteString(fmt.Sprintf("The audio language code is %s. ", t.options.Language))
	}

	if t.options.Prompt != "" {
		sb.WriteString("Match the style of this sample: ")
		sb.WriteString(t.options.Prompt)
		sb.WriteString(" ")
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")

	return sb.String()
}

func geminiResponse(text string) (*Response, error) {
	arr, err := extractSegmentArray(text)
	if err != nil {
		return nil, err
	}

	var texts []string
	gjson.Parse(arr).ForEach(func(_, seg gjson.Result) bool {
		if s := strings.TrimSpace(seg.Get("text").String()); s != "" {
			texts = append(texts, s)
		}
		return true
	})

	return &Response{
		Task:     "transcribe",
		Text:     strings.Join(texts, " "),
		Segments: json.RawMessage(arr),
	}, nil
}

var jsonFence = regexp.MustCompile("```(?:json)?\\s*")

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonFence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// extractSegmentArray finds the first JSON array of {start, end, text}
// objects in free-form model output, also looking one level into wrapper
// objects such as {"segments": [...]}.
func extractSegmentArray(s string) (string, error) {
	s = cleanJSONResponse(s)

	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}

		if arr, ok := segmentArray(gjson.ParseBytes(raw)); ok {
			return arr, nil
		}
		i += int(dec.InputOffset()) - 1
	}

	return "", fmt.Errorf("%w: no transcript segments in %q", ErrBadResponse, truncateString(s, 200))
}

func segmentArray(v gjson.Result) (string, bool) {
	if v.IsArray() {
		if isSegmentArray(v) {
			return v.Raw, true
		}
		return "", false
	}

	var found string
	if v.IsObject() {
		v.ForEach(func(_, val gjson.Result) bool {
			if val.IsArray() && isSegmentArray(val) {
				found = val.Raw
				return false
			}
			return true
		})
	}
	return found, found != ""
}

// every element needs start and end; at least one must carry content
func isSegmentArray(v gjson.Result) bool {
	items := v.Array()
	if len(items) == 0 {
		return false
	}

	meaningful := false
	for _, item := range items {
		if !item.IsObject() || !item.Get("start").Exists() || !item.Get("end").Exists() {
			return false
		}
		if item.Get("end").Float() > item.Get("start").Float() || item.Get("text").String() != "" {
			meaningful = true
		}
	}
	return meaningful
}

// truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
