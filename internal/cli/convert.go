package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/transcript"
)

var convertCmd = &cobra.Command{
	Use:   "convert [input] [output]",
	Short: "Convert subtitles between SRT, VTT and ASS",
	Long: `Read a subtitle file and write it in another format. Entries are kept in
file order and renumbered; timings and text are not altered.

Examples:
  lipistudio convert talk.srt talk.vtt
  lipistudio convert talk.ass -f srt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().
		StringP("format", "f", "", "Output subtitle format (default from output extension)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	if len(args) == 2 {
		outputPath = args[1]
	}
	formatStr, _ := cmd.Flags().GetString("format")

	if err := requireFile(inputPath); err != nil {
		return err
	}
	if outputPath == "" && formatStr == "" {
		return fmt.Errorf("an output path or --format is required")
	}

	format, err := formatFor(formatStr, outputPath)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = outputFor(inputPath, "", format)
	}
	if sameFile(inputPath, outputPath) {
		return fmt.Errorf("output %s would overwrite the input", outputPath)
	}

	segments, from, err := subtitle.Open(inputPath)
	if err != nil {
		return err
	}
	segments = transcript.AssignIDs(segments)

	logger.Infow("Converting subtitles",
		"input", inputPath,
		"output", outputPath,
		"from", from,
		"to", format,
		"segments", len(segments),
	)

	if err := subtitle.WriteFile(outputPath, format, segments); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Printf("Subtitles converted successfully: %s\n", absOutput)
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
