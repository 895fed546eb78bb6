package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/audio"
	ffmpegbin "github.com/mgpai22/lipistudio/internal/ffmpeg"
	"github.com/mgpai22/lipistudio/internal/timecode"
)

var extractCmd = &cobra.Command{
	Use:   "extract [video_file]",
	Short: "Prepare the audio track that transcription would upload",
	Long: `Write the speech track of a video the same way serve --extract-audio and
transcribe do before calling the provider: mono 16 kHz mp3 at 64k unless
overridden. The summary reports whether the result fits in one Whisper
request.

Examples:
  lipistudio extract lecture.mp4
  lipistudio extract lecture.mp4 -o lecture.flac --format flac
  lipistudio extract lecture.mp4 --bitrate 32k`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	defaults := audio.DefaultExtractOptions()
	extractCmd.Flags().
		StringP("format", "f", defaults.Format, "Audio container (mp3, aac, flac, wav)")
	extractCmd.Flags().
		Int("sample-rate", defaults.SampleRate, "Sample rate in Hz")
	extractCmd.Flags().
		Bool("stereo", false, "Keep two channels instead of downmixing to mono")
	extractCmd.Flags().
		String("bitrate", defaults.Bitrate, "Bitrate for mp3/aac")
}

func runExtract(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	if err := requireFile(inputPath); err != nil {
		return err
	}
	if !audio.IsMediaFile(inputPath) {
		return fmt.Errorf("unsupported file type: %s", filepath.Ext(inputPath))
	}

	opts := audio.DefaultExtractOptions()
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.Format = strings.ToLower(opts.Format)
	opts.SampleRate, _ = cmd.Flags().GetInt("sample-rate")
	opts.Bitrate, _ = cmd.Flags().GetString("bitrate")
	if stereo, _ := cmd.Flags().GetBool("stereo"); stereo {
		opts.Channels = 2
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".audio." + opts.Format
	}
	if sameFile(inputPath, outputPath) {
		return fmt.Errorf("output %s would overwrite the input", outputPath)
	}

	processor := audio.NewProcessor(ffmpegbin.NewLocator(cfg.FFmpegPath, cfg.FFprobePath))
	ctx := context.Background()

	logger.Infow("Extracting speech track",
		"input", inputPath,
		"output", outputPath,
		"format", opts.Format,
		"sample_rate", opts.SampleRate,
		"channels", opts.Channels,
	)
	if err := processor.Extract(ctx, inputPath, outputPath, opts); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return err
	}
	var length string
	if d, err := processor.Duration(ctx, outputPath); err == nil {
		length = timecode.FormatClock(d)
	}
	fmt.Println(uploadSummary(outputPath, info.Size(), length))
	return nil
}

// uploadSummary is one line: path, length, size and whether a single
// transcription request can carry the file.
func uploadSummary(path string, size int64, length string) string {
	if length == "" {
		length = "?"
	}
	verdict := "fits one transcription request"
	if size > audio.UploadLimit {
		verdict = fmt.Sprintf("over the %d MB upload limit", audio.UploadLimit>>20)
	}
	return fmt.Sprintf("%s  %s  %.1f MB  %s", path, length, float64(size)/(1<<20), verdict)
}
