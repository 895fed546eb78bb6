package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/playback"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/syncengine"
	"github.com/mgpai22/lipistudio/internal/timecode"
	"github.com/mgpai22/lipistudio/internal/transcript"
)

const previewSteps = 1000

var previewCmd = &cobra.Command{
	Use:   "preview [subtitle_file]",
	Short: "Play captions against a clock in the terminal",
	Long: `Run the caption sync loop against a wall-clock media clock and show the
active caption next to a progress bar. Useful for checking timings without
a player.

Examples:
  lipistudio preview talk.srt
  lipistudio preview talk.vtt --start 1:30 --rate 2
  lipistudio preview talk.ass --duration 600`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().
		String("start", "", "Start position (m:ss.s)")
	previewCmd.Flags().
		Float64("duration", 0, "Media duration in seconds (default: end of the last caption)")
	previewCmd.Flags().
		Float64("rate", 1, "Playback rate")
}

func runPreview(cmd *cobra.Command, args []string) error {
	path := args[0]

	startStr, _ := cmd.Flags().GetString("start")
	durationSecs, _ := cmd.Flags().GetFloat64("duration")
	rate, _ := cmd.Flags().GetFloat64("rate")

	segments, format, err := subtitle.Open(path)
	if err != nil {
		return err
	}
	segments = transcript.AssignIDs(segments)

	duration := timecode.FromSeconds(durationSecs)
	if duration <= 0 {
		duration = lastEnd(segments)
	}
	if duration <= 0 {
		return fmt.Errorf("nothing to preview: %s has no timed captions", path)
	}

	var start time.Duration
	if startStr != "" {
		if start, err = timecode.ParseInputStrict(startStr); err != nil {
			return err
		}
	}
	if rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", rate)
	}

	logger.Infow("Starting preview",
		"file", path,
		"format", format,
		"segments", len(segments),
		"duration", duration.String(),
		"fps", cfg.FPS,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := playback.NewMediaClock(playback.WithDuration(duration))
	clock.SetRate(rate)
	clock.Seek(start)

	store := transcript.NewStore(segments)
	sched := syncengine.NewTickerScheduler(cfg.FPS)
	engine := syncengine.New(clock, store, sched)
	clock.OnPlay(engine.Start)

	frames, cancel := engine.Subscribe()
	defer cancel()
	go sched.Run(ctx)

	bar := progressbar.NewOptions(
		previewSteps,
		progressbar.OptionSetDescription(describeFrame(engine.Sync())),
		progressbar.OptionShowBytes(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
	)

	clock.Play()

	var lastID string
	for {
		select {
		case <-ctx.Done():
			clock.Pause()
			_ = bar.Exit()
			fmt.Printf("Stopped at %s\n", timecode.FormatInput(clock.Position()))
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if id := activeID(frame); id != lastID {
				lastID = id
				logger.Debugw("caption", "at", frame.Clock, "id", id)
			}
			bar.Describe(describeFrame(frame))
			if err := bar.Set(int(frame.Progress * previewSteps)); err != nil {
				logger.Warnw("progress bar update failed", "error", err)
			}
			if frame.Paused && clock.Ended() {
				_ = bar.Finish()
				fmt.Printf("Finished %s (%s)\n", path, frame.Clock)
				return nil
			}
		}
	}
}

func lastEnd(segments []subtitle.Segment) time.Duration {
	var end time.Duration
	for _, seg := range segments {
		end = max(end, seg.EndTime)
	}
	return end
}

func activeID(frame syncengine.Frame) string {
	if frame.Active == nil {
		return ""
	}
	return frame.Active.ID
}

// describeFrame renders "0:05 / 2:11  caption text" on one line.
func describeFrame(frame syncengine.Frame) string {
	text := ""
	if frame.Active != nil {
		text = strings.Join(strings.Fields(frame.Active.Text), " ")
		if r := []rune(text); len(r) > 60 {
			text = string(r[:57]) + "..."
		}
	}
	return fmt.Sprintf("%s / %s  %s", frame.Clock, timecode.FormatClock(frame.Duration), text)
}
