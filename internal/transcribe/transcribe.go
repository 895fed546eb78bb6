package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/timecode"
)

var (
	ErrNoInput     = errors.New("no media to transcribe")
	ErrBadResponse = errors.New("unexpected transcription response")
)

// media payload forwarded to a provider
type Media struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Response is relayed to clients as-is. Segments holds the provider's raw
// segment array so extra fields (id, seek, tokens, ...) survive.
type Response struct {
	Task     string          `json:"task"`
	Text     string          `json:"text"`
	Segments json.RawMessage `json:"segments,omitempty"`

	Language string  `json:"-"`
	Duration float64 `json:"-"`
}

// interface for media transcription
type Transcriber interface {
	Transcribe(ctx context.Context, media Media) (*Response, error)
}

// transcription service provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// transcription options
type Options struct {
	Language string // language hint sent upstream
	Model    string
	Prompt   string // priming prompt
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Transcriber, error) {
	switch Provider(strings.ToLower(string(provider))) {
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	case ProviderOpenAI, "":
		return NewOpenAITranscriber(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// ToSegments maps the raw upstream segments to editor segments. IDs are the
// 1-based position; text is trimmed but empty entries are kept so positions
// line up with the relayed array.
func (r *Response) ToSegments() ([]subtitle.Segment, error) {
	if len(r.Segments) == 0 {
		return []subtitle.Segment{}, nil
	}

	parsed := gjson.ParseBytes(r.Segments)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: segments is not an array", ErrBadResponse)
	}

	items := parsed.Array()
	segments := make([]subtitle.Segment, 0, len(items))
	for i, item := range items {
		segments = append(segments, subtitle.Segment{
			ID:        strconv.Itoa(i + 1),
			StartTime: timecode.FromSeconds(item.Get("start").Float()),
			EndTime:   timecode.FromSeconds(item.Get("end").Float()),
			Text:      strings.TrimSpace(item.Get("text").String()),
		})
	}

	return segments, nil
}

// ParseResponse reads a relayed response body, as produced by this package
// or by a client of /api/transcribe.
func ParseResponse(data []byte) (*Response, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrBadResponse)
	}

	root := gjson.ParseBytes(data)
	resp := &Response{
		Task: root.Get("task").String(),
		Text: root.Get("text").String(),
	}
	if seg := root.Get("segments"); seg.Exists() && seg.Type != gjson.Null {
		resp.Segments = json.RawMessage(seg.Raw)
	}
	if resp.Task == "" {
		resp.Task = "transcribe"
	}
	return resp, nil
}
