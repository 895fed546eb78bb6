package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/transcript"
	"github.com/mgpai22/lipistudio/internal/translate"
)

var translateCmd = &cobra.Command{
	Use:   "translate [subtitle_file]",
	Short: "Translate subtitles to another language using AI",
	Long: `Translate an existing subtitle file to another language using AI.

Supports SRT, VTT, and ASS/SSA input. Timings are kept; only the text of
each entry changes.

The --overlay flag creates bilingual subtitles with the translated text
first, followed by the original text on the next line.

Examples:
  lipistudio translate talk.srt --target-language english
  lipistudio translate talk.ass -t ja --overlay --provider anthropic
  lipistudio translate talk.vtt -l hi -t spanish -o translated.vtt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().
		StringP("target-language", "t", "", "Target language for translation (required)")
	translateCmd.Flags().
		Bool("overlay", false, "Overlay translated text with original (bilingual subtitles)")
	translateCmd.Flags().
		Int("concurrency", translate.DefaultConcurrency, "Number of parallel translation workers")
	translateCmd.Flags().
		Int("batch-size", translate.DefaultBatchSize, "Number of subtitle entries per API request")
	translateCmd.Flags().
		StringP("format", "f", "", "Output subtitle format (default: same as input)")

	_ = translateCmd.MarkFlagRequired("target-language")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	subtitlePath := args[0]
	ctx := context.Background()

	targetLang, _ := cmd.Flags().GetString("target-language")
	overlay, _ := cmd.Flags().GetBool("overlay")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	formatStr, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	inputLang := ""
	if cmd.Flags().Changed("language") {
		inputLang = cfg.Language
	}

	if err := requireFile(subtitlePath); err != nil {
		return err
	}
	if targetLang == "" {
		return fmt.Errorf("target language is required")
	}
	if sameLanguage(inputLang, targetLang) {
		return fmt.Errorf(
			"input language %q and target language %q cannot be the same",
			inputLang,
			targetLang,
		)
	}
	if concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", batchSize)
	}

	segments, inFormat, err := subtitle.Open(subtitlePath)
	if err != nil {
		return fmt.Errorf("failed to parse subtitle file: %w", err)
	}
	if len(segments) == 0 {
		return fmt.Errorf("subtitle file contains no entries")
	}
	segments = transcript.AssignIDs(segments)

	format := inFormat
	if formatStr != "" {
		if format, err = subtitle.ParseFormat(formatStr); err != nil {
			return err
		}
	}
	if outputPath == "" {
		tag := targetLang
		if overlay {
			tag += ".overlay"
		}
		outputPath = outputFor(subtitlePath, tag, format)
	}

	provider := translate.Provider(cfg.Provider)
	translator, err := translate.Factory(ctx, provider, cfg.APIKey(cfg.Provider), translate.Options{
		InputLanguage:  inputLang,
		TargetLanguage: targetLang,
		Model:          cfg.Model,
		BatchSize:      batchSize,
		Concurrency:    concurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	logger.Infow("Translating subtitles",
		"input", subtitlePath,
		"output", outputPath,
		"provider", provider,
		"target_language", targetLang,
		"segments", len(segments),
		"concurrency", concurrency,
	)

	translated, err := translate.Segments(ctx, translator, segments)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}
	if overlay {
		translated = overlaySegments(translated, segments)
	}

	if err := subtitle.WriteFile(outputPath, format, translated); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Printf("Subtitles translated successfully: %s\n", absOutput)
	fmt.Printf("  Entries: %d\n", len(translated))
	fmt.Printf("  Target language: %s\n", targetLang)
	if overlay {
		fmt.Printf("  Mode: bilingual overlay\n")
	}

	return nil
}

// translated + newline + original, matched by id
func overlaySegments(translated, original []subtitle.Segment) []subtitle.Segment {
	byID := make(map[string]string, len(original))
	for _, seg := range original {
		byID[seg.ID] = seg.Text
	}

	out := make([]subtitle.Segment, len(translated))
	for i, seg := range translated {
		if orig, ok := byID[seg.ID]; ok && orig != seg.Text {
			seg.Text = seg.Text + "\n" + orig
		}
		out[i] = seg
	}
	return out
}
