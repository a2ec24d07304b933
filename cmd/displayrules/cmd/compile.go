package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/displayrules/internal/core/db"
	"github.com/solatis/displayrules/internal/display"
	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/rules"
	"github.com/solatis/displayrules/internal/types"
)

var compileCmd = &cobra.Command{
	Use:   "compile DISPLAY...",
	Short: "Compile display files into HTML pages with rule scripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().String("out", "", "output directory for generated pages")
	compileCmd.Flags().String("macros", "", "YAML file of macros applied to every display")
	compileCmd.Flags().Bool("continue-on-error", false, "write pages even when rules fail to compile")
	compileCmd.Flags().Int("parallel", 0, "displays compiled concurrently (default: number of CPUs)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.OutputDir, _ = flags.GetString("out")
	}
	if flags.Changed("macros") {
		cfg.MacroFile, _ = flags.GetString("macros")
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}
	if flags.Changed("parallel") {
		cfg.Parallelism, _ = flags.GetInt("parallel")
		if cfg.Parallelism <= 0 {
			return fmt.Errorf("--parallel must be positive, got %d", cfg.Parallelism)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &batch{
		outDir:          cfg.OutputDir,
		continueOnError: cfg.ContinueOnError,
		parallelism:     cfg.Parallelism,
		logger:          logger,
	}
	if cfg.MacroFile != "" {
		m, err := macros.LoadFile(cfg.MacroFile)
		if err != nil {
			return err
		}
		b.macros = m
	}

	if cfg.DBURL != "" {
		database, err := db.Open(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		store, err := openStore(ctx, database)
		if err != nil {
			return err
		}
		runID, err := store.StartRun(ctx)
		if err != nil {
			return err
		}
		b.store = store
		b.runID = runID
		logger = logger.With(zap.String("run", string(runID)))
		b.logger = logger
	}

	runErr := b.run(ctx, args)

	stats := b.stats()
	if b.store != nil {
		if err := b.store.FinishRun(context.WithoutCancel(ctx), b.runID, stats); err != nil {
			logger.Warn("Failed to finish run", zap.Error(err))
		}
	}
	logger.Info("Compilation finished",
		zap.Int("displays", stats.Displays),
		zap.Int("rules_emitted", stats.RulesEmitted),
		zap.Int("rules_failed", stats.RulesFailed))

	return runErr
}

// batch compiles a set of display files, one page each.
type batch struct {
	outDir          string
	continueOnError bool
	parallelism     int
	macros          macros.Provider
	logger          *zap.Logger

	// store is nil when no diagnostics database is configured
	store *db.DiagnosticStore
	runID types.RunID

	displays atomic.Int64
	emitted  atomic.Int64
	failed   atomic.Int64
}

func (b *batch) stats() db.RunStats {
	return db.RunStats{
		Displays:     int(b.displays.Load()),
		RulesEmitted: int(b.emitted.Load()),
		RulesFailed:  int(b.failed.Load()),
	}
}

// run compiles paths concurrently. Without continueOnError the first failing
// display cancels the rest; with it every display is attempted and the
// failures are returned joined.
func (b *batch) run(ctx context.Context, paths []string) error {
	if err := checkOutputNames(paths); err != nil {
		return err
	}
	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.parallelism, 1))

	var mu sync.Mutex
	var errs []error
	for _, path := range paths {
		path := path
		g.Go(func() error {
			err := b.compileFile(gctx, path)
			if err == nil || !b.continueOnError {
				return err
			}
			b.logger.Error("Display failed", zap.String("display", path), zap.Error(err))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (b *batch) compileFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open display: %w", err)
	}
	d, err := display.Parse(f, b.macros)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	name := filepath.Base(path)
	logger := b.logger.With(zap.String("display", name))
	page := rules.NewPage(
		rules.WithLogger(logger),
		rules.WithDiagnosticSink(&diagnosticSink{ctx: ctx, batch: b, display: name, logger: logger}),
	)

	compileErr := display.NewCompiler(page, logger).Compile(d)
	b.displays.Add(1)
	if compileErr != nil && !b.continueOnError {
		return fmt.Errorf("%s: %w", path, compileErr)
	}

	out := filepath.Join(b.outDir, pageName(path))
	if err := writePage(out, d, page); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	// Only rules that reached a written page count as emitted.
	b.emitted.Add(int64(page.Registry().Len()))
	logger.Info("Wrote page",
		zap.String("page", out),
		zap.Int("rules", page.Registry().Len()))
	return nil
}

func pageName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".html"
}

// checkOutputNames rejects inputs that would overwrite each other's page.
func checkOutputNames(paths []string) error {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		name := pageName(p)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s both produce %s", prev, p, name)
		}
		seen[name] = p
	}
	return nil
}

// writePage renders into a temporary file and renames it into place, so a
// failed render never leaves a truncated page behind.
func writePage(path string, d *display.Display, page *rules.Page) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.html")
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := display.Render(tmp, d, page, ""); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
