// Package audio probes media files and extracts speech-friendly audio tracks
// with ffmpeg before they are sent to a transcription provider.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/lipistudio/internal/ffmpeg"
)

// settings for audio extraction
type ExtractOptions struct {
	Format     string // Output format (mp3, aac, flac, wav)
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of channels (1=mono, 2=stereo)
	Bitrate    string // Bitrate for lossy formats (e.g., "64k")
}

// defaults for transcription uploads: small mono mp3
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// largest file Whisper accepts in one request
const UploadLimit = 25 << 20

// Validate rejects formats and channel layouts the extractor cannot produce.
func (o ExtractOptions) Validate() error {
	switch o.Format {
	case "mp3", "aac", "flac", "wav":
	default:
		return fmt.Errorf("invalid format %q: supported formats are mp3, aac, flac, wav", o.Format)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", o.SampleRate)
	}
	if o.Channels != 1 && o.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", o.Channels)
	}
	return nil
}

// Processor runs ffmpeg/ffprobe from a resolved location.
type Processor struct {
	bins *ffmpegbin.Locator
}

func NewProcessor(bins *ffmpegbin.Locator) *Processor {
	if bins == nil {
		bins = ffmpegbin.NewLocator("", "")
	}
	return &Processor{bins: bins}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// duration of an audio/video file
func (p *Processor) Duration(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	ffprobePath, err := p.bins.FFprobePath()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probe.Format.Duration, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// kwargs for the ffmpeg output stream
func extractArgs(opts ExtractOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "", // No video
		"ar": opts.SampleRate,
		"ac": opts.Channels,
	}

	switch opts.Format {
	case "aac":
		kwargs["acodec"] = "aac"
	case "flac":
		kwargs["acodec"] = "flac"
	case "wav":
		kwargs["acodec"] = "pcm_s16le"
	default:
		kwargs["acodec"] = "libmp3lame"
	}

	if opts.Bitrate != "" && (opts.Format == "mp3" || opts.Format == "aac" || opts.Format == "") {
		kwargs["b:a"] = opts.Bitrate
	}

	return kwargs
}

// Extract writes the audio track of inputPath to outputPath.
func (p *Processor) Extract(
	ctx context.Context,
	inputPath, outputPath string,
	opts ExtractOptions,
) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := p.bins.FFmpegPath()
	if err != nil {
		return err
	}

	stream := ffmpeg.Input(inputPath).
		Output(outputPath, extractArgs(opts)).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath)

	done := make(chan error, 1)
	go func() { done <- stream.Run() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg extraction failed: %w", err)
		}
	}

	return nil
}

// ExtractTemp extracts into a new temp file and returns its path and a
// cleanup func.
func (p *Processor) ExtractTemp(
	ctx context.Context,
	inputPath string,
	opts ExtractOptions,
) (string, func(), error) {
	dir, err := os.MkdirTemp("", "lipistudio-audio")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	ext := opts.Format
	if ext == "" {
		ext = "mp3"
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(dir, base+"."+ext)

	if err := p.Extract(ctx, inputPath, out, opts); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return out, cleanup, nil
}

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wma":  true,
	".aiff": true,
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

// best-effort content type for an upload, from the file extension
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	}
	return "application/octet-stream"
}
