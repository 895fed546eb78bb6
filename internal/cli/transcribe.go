package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/audio"
	ffmpegbin "github.com/mgpai22/lipistudio/internal/ffmpeg"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [media_file]",
	Short: "Transcribe an audio or video file into subtitles",
	Long: `Send a media file to the configured speech-to-text provider and write
one subtitle entry per returned segment.

Video files have their audio track extracted first unless --no-extract is
given. Uploads are limited to what the provider accepts (25 MB for Whisper).

Examples:
  lipistudio transcribe talk.mp4
  lipistudio transcribe talk.mp4 -f vtt -o captions.vtt
  lipistudio transcribe podcast.mp3 --provider gemini --raw raw.json`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().
		StringP("format", "f", "", "Output subtitle format (srt, vtt, ass)")
	transcribeCmd.Flags().
		String("prompt", "", "Priming prompt for the provider (default Hinglish prompt)")
	transcribeCmd.Flags().
		Bool("no-extract", false, "Upload video files as-is")
	transcribeCmd.Flags().
		String("raw", "", "Also write the provider response JSON to this path")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]
	ctx := context.Background()

	if err := requireFile(mediaPath); err != nil {
		return err
	}
	if !audio.IsMediaFile(mediaPath) {
		return fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(mediaPath))
	}

	formatStr, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	prompt, _ := cmd.Flags().GetString("prompt")
	noExtract, _ := cmd.Flags().GetBool("no-extract")
	rawPath, _ := cmd.Flags().GetString("raw")

	format, err := formatFor(formatStr, outputPath)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = outputFor(mediaPath, "", format)
	}
	if prompt == "" {
		prompt = cfg.Prompt
	}

	transcriber, err := transcribe.Factory(ctx, transcribe.Provider(cfg.Provider), cfg.APIKey(cfg.Provider), transcribe.Options{
		Language: cfg.Language,
		Model:    cfg.Model,
		Prompt:   prompt,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}

	uploadPath := mediaPath
	if audio.IsVideoFile(mediaPath) && !noExtract {
		logger.Infow("Extracting audio from video", "input", mediaPath)

		processor := audio.NewProcessor(ffmpegbin.NewLocator(cfg.FFmpegPath, cfg.FFprobePath))
		extracted, cleanup, err := processor.ExtractTemp(ctx, mediaPath, audio.DefaultExtractOptions())
		if err != nil {
			return fmt.Errorf("failed to extract audio: %w", err)
		}
		defer cleanup()
		uploadPath = extracted
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	logger.Infow("Transcribing",
		"input", mediaPath,
		"provider", cfg.Provider,
		"language", cfg.Language,
	)

	resp, err := transcriber.Transcribe(ctx, transcribe.Media{
		Name:        filepath.Base(uploadPath),
		ContentType: audio.ContentType(uploadPath),
		Body:        f,
	})
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	if rawPath != "" {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(rawPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write raw response: %w", err)
		}
	}

	segments, err := resp.ToSegments()
	if err != nil {
		return err
	}
	if err := subtitle.WriteFile(outputPath, format, segments); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Printf("Subtitles generated successfully: %s\n", absOutput)
	fmt.Printf("  Segments: %d\n", len(segments))

	return nil
}
