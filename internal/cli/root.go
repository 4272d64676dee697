package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apresai/docchat/internal/chart"
	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/config"
	"github.com/apresai/docchat/internal/ingest"
	"github.com/apresai/docchat/internal/observability"
	"github.com/apresai/docchat/internal/progress"
	"github.com/apresai/docchat/internal/session"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "docchat [file.pdf]",
	Short: "Chat with a PDF and chart the numbers inside it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInteractive,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docchat %s\n", Version)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <file.pdf> <question>",
	Short: "Ask one question about a PDF and print the answer",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Print the text extracted from a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available completion models",
	Run:   runModels,
}

var (
	flagModel           string
	flagMode            string
	flagMinText         int
	flagVerbose         bool
	flagJSON            bool
	flagWidth           int
	flagGeminiAPIKey    string
	flagAnthropicAPIKey string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(modelsCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagModel, "model", "m", "", "Completion model: "+strings.Join(modelAliases(), ", ")+" (overrides DOCCHAT_MODEL)")
	pf.StringVar(&flagMode, "mode", "chat", "View mode: chat or insights")
	pf.IntVar(&flagMinText, "min-text", 0, "Minimum extracted characters for a usable PDF (overrides DOCCHAT_MIN_TEXT)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
	pf.StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
	pf.StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY env var)")

	askCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the transcript entry as JSON")
	askCmd.Flags().IntVarP(&flagWidth, "width", "w", 0, "Chart width in columns (default: terminal width)")
}

// Execute runs the root command; ctx is cancelled on SIGINT or SIGTERM.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(ctx context.Context, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagMinText > 0 {
		cfg.MinTextLength = flagMinText
	}
	if flagGeminiAPIKey != "" {
		cfg.GeminiAPIKey = flagGeminiAPIKey
	}
	if flagAnthropicAPIKey != "" {
		cfg.AnthropicAPIKey = flagAnthropicAPIKey
	}
	if flagVerbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if err := cfg.LoadSecrets(ctx, logger); err != nil {
		logger.Warn("Failed to load secrets from Secrets Manager, falling back to env vars", "error", err)
	}
	return cfg, nil
}

// stderrLogger is used by the non-interactive commands; without --verbose
// only warnings reach the terminal.
func stderrLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return observability.InitLogger(os.Stderr, level)
}

func startTracing(ctx context.Context, logger *slog.Logger) func() {
	shutdown, err := observability.InitTracer(ctx, "docchat", Version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("Tracer shutdown error", "error", err)
		}
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Bubble Tea owns the terminal, so logs go to a rotating file.
	bootLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := loadConfig(ctx, bootLogger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := session.ParseMode(flagMode)
	if err != nil {
		return err
	}

	logFile, err := observability.NewFileWriter(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := observability.InitLogger(logFile, cfg.LogLevel)
	slog.SetDefault(logger)
	defer startTracing(ctx, logger)()

	completer, err := completion.New(ctx, cfg.Model, cfg.Keys())
	if err != nil {
		return err
	}
	extractor := ingest.NewPDFExtractor(cfg.MinTextLength, nil)

	sess := session.New()
	sess.SetMode(mode)

	deps := tuiDeps{
		ctx:       ctx,
		sess:      sess,
		extractor: extractor,
		completer: completer,
		logger:    logger,
	}
	if len(args) == 1 {
		deps.startFile = args[0]
	}
	logger.Info("docchat starting", "model", cfg.Model, "mode", mode.String(), "version", Version)
	return runTUI(deps, extractor)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := stderrLogger()
	defer startTracing(ctx, logger)()

	cfg, err := loadConfig(ctx, logger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := session.ParseMode(flagMode)
	if err != nil {
		return err
	}
	completer, err := completion.New(ctx, cfg.Model, cfg.Keys())
	if err != nil {
		return err
	}

	extractor := ingest.NewPDFExtractor(cfg.MinTextLength, nil)
	var bar *progress.BarRenderer
	if !flagVerbose && !flagJSON {
		bar = progress.NewBarRenderer(os.Stderr)
		extractor.OnProgress = bar.Handle
	}
	ctrl := session.NewController(session.New(), extractor, completer, logger)

	upload, err := ingest.ReadUpload(args[0])
	if err != nil {
		return err
	}
	if _, err := ctrl.Upload(ctx, upload); err != nil {
		if bar != nil {
			bar.Finish()
		}
		return fmt.Errorf("%s", ingest.UserMessage(err))
	}

	if bar != nil {
		bar.Handle(progress.Event{Stage: progress.StageAsk, Message: "Asking " + cfg.Model + "..."})
	}
	entry, err := ctrl.Ask(ctx, strings.Join(args[1:], " "), mode)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	width := flagWidth
	if width <= 0 {
		width = progress.TerminalWidth(os.Stdout)
	}
	return printEntry(os.Stdout, entry, flagJSON, width)
}

// printEntry writes a model entry as JSON or as terminal text.
func printEntry(w io.Writer, e session.Entry, asJSON bool, width int) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	}
	if e.Kind == session.KindChart && e.Chart != nil {
		fmt.Fprintln(w, chart.Render(e.Chart, width))
		fmt.Fprintln(w)
	}
	_, err := fmt.Fprintln(w, e.Content)
	return err
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := stderrLogger()
	defer startTracing(ctx, logger)()

	cfg, err := loadConfig(ctx, logger)
	if err != nil {
		return err
	}

	extractor := ingest.NewPDFExtractor(cfg.MinTextLength, nil)
	if !flagVerbose {
		bar := progress.NewBarRenderer(os.Stderr)
		defer bar.Finish()
		extractor.OnProgress = bar.Handle
	}

	upload, err := ingest.ReadUpload(args[0])
	if err != nil {
		return err
	}
	doc, err := extractor.Extract(ctx, upload)
	if err != nil {
		logger.Error("extraction failed", "file", upload.Name, "error", err)
		return fmt.Errorf("%s", ingest.UserMessage(err))
	}
	logger.Info("extracted", "file", doc.Name, "pages", doc.Pages, "chars", len(doc.Text))
	fmt.Println(doc.Text)
	return nil
}

func runModels(cmd *cobra.Command, args []string) {
	fmt.Println("\nAvailable models:")
	fmt.Printf("\n  %-14s %-10s %-30s %s\n", "ALIAS", "PROVIDER", "MODEL ID", "DESCRIPTION")
	fmt.Printf("  %s\n", strings.Repeat("─", 90))
	for _, m := range completion.Models() {
		fmt.Printf("  %-14s %-10s %-30s %s\n", m.Alias, m.Provider, m.ID, m.Label)
	}
	fmt.Println()
}

func modelAliases() []string {
	var out []string
	for _, m := range completion.Models() {
		out = append(out, m.Alias)
	}
	return out
}
