package transcribe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

const defaultOpenAIModel = "whisper-1"

// implements Transcriber using the OpenAI Audio API
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAITranscriber(
	ctx context.Context,
	apiKey string,
	opts Options,
	extra ...option.RequestOption,
) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	client := openai.NewClient(reqOpts...)

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAITranscriber{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, media Media) (*Response, error) {
	if media.Body == nil {
		return nil, ErrNoInput
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(media.Body, media.Name, media.ContentType),
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}

	if t.options.Language != "" {
		params.Language = openai.String(t.options.Language)
	}

	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	raw := resp.RawJSON()
	if raw == "" {
		return &Response{Task: "transcribe", Text: resp.Text}, nil
	}
	return parseVerboseJSON(raw)
}

// parseVerboseJSON keeps the segment array byte-for-byte.
func parseVerboseJSON(raw string) (*Response, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid verbose_json", ErrBadResponse)
	}

	root := gjson.Parse(raw)
	resp := &Response{
		Task:     "transcribe",
		Text:     root.Get("text").String(),
		Language: root.Get("language").String(),
		Duration: root.Get("duration").Float(),
	}
	if seg := root.Get("segments"); seg.Exists() && seg.Type != gjson.Null {
		resp.Segments = json.RawMessage(seg.Raw)
	}
	return resp, nil
}
