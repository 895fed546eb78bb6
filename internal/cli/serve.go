package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/audio"
	ffmpegbin "github.com/mgpai22/lipistudio/internal/ffmpeg"
	"github.com/mgpai22/lipistudio/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription proxy and editor API",
	Long: `Serve the HTTP API: the transcription proxy, editor sessions, subtitle
export, the live caption WebSocket and Prometheus metrics.

Examples:
  lipistudio serve
  lipistudio serve --addr :9000 --extract-audio
  lipistudio serve --provider gemini --fps 30`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default from LIPISTUDIO_ADDR or :8080)")
	serveCmd.Flags().Bool("extract-audio", false, "Extract the audio track of video uploads before transcription")
	serveCmd.Flags().Bool("strict-times", false, "Reject malformed time input instead of reading it as zero")
	serveCmd.Flags().Int("fps", 0, "Caption frame rate per session")
	serveCmd.Flags().Int("max-upload-mb", 0, "Maximum request body size in MB")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("extract-audio") {
		cfg.ExtractAudio, _ = flags.GetBool("extract-audio")
	}
	if flags.Changed("strict-times") {
		cfg.StrictTimes, _ = flags.GetBool("strict-times")
	}
	if v, _ := flags.GetInt("fps"); v > 0 {
		cfg.FPS = v
	}
	if v, _ := flags.GetInt("max-upload-mb"); v > 0 {
		cfg.MaxUploadMB = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Config: cfg,
		Logger: logger,
		Audio:  audio.NewProcessor(ffmpegbin.NewLocator(cfg.FFmpegPath, cfg.FFprobePath)),
	})

	logger.Infow("Starting server",
		"addr", cfg.Addr,
		"provider", cfg.Provider,
		"language", cfg.Language,
		"extract_audio", cfg.ExtractAudio,
		"fps", cfg.FPS,
	)
	return srv.Start(ctx, cfg.Addr)
}
