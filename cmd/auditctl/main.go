// Command auditctl inspects the audit ledger and masks documents offline,
// without calling the text generator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/audit"
	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/document"
	"github.com/raaihank/pii-gateway/internal/gateway"
	"github.com/raaihank/pii-gateway/internal/generator"
	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/privacy"
	"github.com/raaihank/pii-gateway/internal/validator"
)

// offline refuses generation; auditctl only ever masks.
var offline = generator.Func(func(context.Context, string, string) (string, error) {
	return "", &generator.Error{Provider: "offline", Reason: "generation is disabled"}
})

func main() {
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		inputFile   = flag.String("input", "", "Document to mask (.txt, .md, .csv, .html)")
		mappingFile = flag.String("mapping", "", "Write the mask mapping of -input to this file")
		record      = flag.Bool("record", false, "Record the -input masking in the audit ledger")
		showStats   = flag.Bool("stats", false, "Show audit ledger statistics and exit")
		verbose     = flag.Bool("verbose", false, "Log at the configured level instead of errors only")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input notes.md --mapping notes.mapping.json\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := "error"
	if *verbose {
		level = cfg.Logging.Level
	}
	log, err := logger.New(logger.Config{Level: level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var runErr error
	switch {
	case *showStats:
		runErr = showLedgerStats(ctx, cfg.Audit, log, os.Stdout)
	default:
		runErr = maskDocument(ctx, cfg, log, maskJob{
			input:   *inputFile,
			mapping: *mappingFile,
			record:  *record,
		}, os.Stdout)
	}
	if runErr != nil {
		log.Error("auditctl failed", zap.Error(runErr))
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

func showLedgerStats(ctx context.Context, cfg config.AuditConfig, log *logger.Logger, out io.Writer) error {
	ledger, err := audit.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("opening audit ledger: %w", err)
	}
	defer ledger.Close()

	events, err := ledger.Events(ctx)
	if err != nil {
		return fmt.Errorf("reading audit ledger: %w", err)
	}
	printSummary(out, ledger.Backend(), audit.Summarize(events))
	return nil
}

func printSummary(out io.Writer, backend string, s audit.Summary) {
	threat := s.PrimaryThreat
	if threat == "" {
		threat = "none"
	}

	fmt.Fprintf(out, "\n=== PII Gateway Audit Ledger (%s) ===\n", backend)
	fmt.Fprintf(out, "Total Operations:   %d\n", s.TotalOperations)
	fmt.Fprintf(out, "Items Blocked:      %d\n", s.TotalBlocked)
	fmt.Fprintf(out, "Primary Threat:     %s\n", threat)

	if len(s.CategoryTotals) == 0 {
		return
	}
	categories := make([]string, 0, len(s.CategoryTotals))
	for c := range s.CategoryTotals {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	fmt.Fprintf(out, "\n=== Items By Category ===\n")
	for _, c := range categories {
		fmt.Fprintf(out, "%-20s%d\n", c+":", s.CategoryTotals[c])
	}
}

type maskJob struct {
	input   string
	mapping string
	record  bool
}

func maskDocument(ctx context.Context, cfg *config.Config, log *logger.Logger, job maskJob, out io.Writer) error {
	f, err := os.Open(job.input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	text, err := document.NewExtractor(cfg.Server.MaxUploadSize).Extract(job.input, f)
	if err != nil {
		return err
	}

	registry, err := privacy.BuildRegistry(cfg.Privacy)
	if err != nil {
		return fmt.Errorf("building recognizer registry: %w", err)
	}

	opts := gateway.Options{
		Registry: registry,
		Validator: validator.New(validator.Config{
			MaxLength:        cfg.Validation.MaxLength,
			ForbiddenPhrases: cfg.Validation.ForbiddenPhrases,
		}),
		Generator: offline,
		Logger:    log,
		Settings:  gateway.Settings{MinScore: cfg.Privacy.MinScore, Categories: cfg.Privacy.Entities},
	}

	if job.record {
		ledger, err := audit.Open(cfg.Audit, log)
		if err != nil {
			return fmt.Errorf("opening audit ledger: %w", err)
		}
		auditLog := audit.NewLogger(ledger, log, audit.Options{QueueSize: cfg.Audit.QueueSize})
		defer auditLog.Close()
		opts.Audit = auditLog
	}

	pipeline, err := gateway.New(opts)
	if err != nil {
		return err
	}

	result, err := pipeline.Mask(ctx, text)
	if err != nil {
		return err
	}

	if job.mapping != "" {
		data, err := json.MarshalIndent(result.Mapping, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding mapping: %w", err)
		}
		if err := os.WriteFile(job.mapping, data, 0o600); err != nil {
			return fmt.Errorf("writing mapping: %w", err)
		}
	}

	fmt.Fprintln(out, result.Masked)
	return nil
}
