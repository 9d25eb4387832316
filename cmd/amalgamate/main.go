// Command amalgamate generates the single-header distribution of a
// header-only library.
//
// Usage:
//
//	amalgamate [noimpl] [flags]
//
// Run from the library's scripts/ directory with no arguments it reads
// ../include/nanostl.h and writes ../single_include/nanostl.h.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nanostl/amalgamate"
	"github.com/nanostl/amalgamate/internal/config"
	"github.com/nanostl/amalgamate/internal/watch"
)

const (
	exitOK    = 0
	exitErr   = 1
	exitUsage = 2
)

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type flags struct {
	configPath string
	noImpl     bool
	version    string
	check      bool
	watch      bool
	logLevel   string
}

// noimplArgs accepts only the legacy "noimpl" positional argument.
func noimplArgs(_ *cobra.Command, args []string) error {
	for _, a := range args {
		if !strings.EqualFold(a, "noimpl") {
			return usageError{fmt.Errorf("unrecognised argument: %s", strings.ToLower(a))}
		}
	}
	return nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "amalgamate [noimpl]",
		Short: "Flatten the library headers into one single-include header",
		Long: `amalgamate walks the local #include graph starting at the root header,
expands every header exactly once, strips include guards and comment banners,
and writes a single self-contained header with one license banner.`,
		Args:          noimplArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.check && f.watch {
				return usageError{errors.New("--check and --watch cannot be combined")}
			}
			if len(args) > 0 {
				f.noImpl = true
			}
			return run(cmd.Context(), f, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML config file (defaults mirror the NanoSTL tree)")
	fl.BoolVar(&f.noImpl, "no-impl", false, "leave implementation regions out of the output")
	fl.StringVar(&f.version, "version-string", "", "version embedded in the banner (overrides config)")
	fl.BoolVar(&f.check, "check", false, "fail if the output is not up to date instead of writing it")
	fl.BoolVar(&f.watch, "watch", false, "regenerate whenever a header changes")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, usageError{fmt.Errorf("invalid --log-level %q", level)}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func options(cfg config.Config, f flags, log *slog.Logger) amalgamate.Options {
	opts := amalgamate.Options{
		IncludeDir:         cfg.IncludePath(),
		RootFile:           cfg.RootFile,
		Output:             cfg.OutputPath(),
		Project:            cfg.Project,
		Version:            cfg.Version,
		Copyright:          cfg.Copyright,
		GuardPrefix:        cfg.GuardPrefix,
		ImplSymbol:         cfg.ImplSymbol,
		InternalDir:        cfg.InternalDir,
		AlwaysExpand:       cfg.AlwaysExpand,
		SingleIncludeGuard: cfg.SingleIncludeGuard,
		IncludeImpl:        cfg.Impl() && !f.noImpl,
		Logger:             log,
	}
	if f.version != "" {
		opts.Version = f.version
	}
	return opts
}

func run(ctx context.Context, f flags, stdout, stderr io.Writer) error {
	log, err := newLogger(stderr, f.logLevel)
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	opts := options(cfg, f, log)

	if f.check {
		diff, err := amalgamate.Check(opts)
		if diff != "" {
			fmt.Fprint(stdout, diff)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s is up to date\n", opts.Output)
		return nil
	}

	g := newRegenerator(opts)
	if err := g.generate(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Generated single include for %s v%s\n", opts.Project, opts.Version)
	if !f.watch {
		return nil
	}

	wopts := watch.DefaultOptions()
	wopts.Logger = log
	w, err := watch.New(opts.IncludeDir, func(changes []watch.Change) {
		if !g.affected(changes) {
			return
		}
		log.Info("headers changed", "count", len(changes))
		if err := g.generate(); err != nil {
			log.Error("regenerate failed", "err", err)
		}
	}, &wopts)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	log.Info("watching for changes", "dir", opts.IncludeDir)
	<-ctx.Done()
	w.Stop()
	return nil
}

// regenerator remembers which files the last run read, so watch mode
// only regenerates for changes that can alter the artifact.
type regenerator struct {
	opts   amalgamate.Options
	output string
	files  map[string]bool
	failed bool
}

func newRegenerator(opts amalgamate.Options) *regenerator {
	return &regenerator{opts: opts, output: absPath(opts.Output)}
}

func (g *regenerator) generate() error {
	res, err := amalgamate.Generate(g.opts)
	if err != nil {
		g.failed = true
		return err
	}
	g.failed = false
	g.files = make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		g.files[f] = true
	}
	return nil
}

// affected reports whether a batch touches a file the last run read or
// creates a path that a rerun might pick up. The artifact itself never
// counts, so an output inside the include tree cannot retrigger itself.
// After a failed run any change counts.
func (g *regenerator) affected(changes []watch.Change) bool {
	for _, c := range changes {
		p := absPath(c.Path)
		if p == g.output {
			continue
		}
		if g.failed || g.files[p] || c.Op.Has(fsnotify.Create) {
			return true
		}
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "\n** %v **\n\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return exitUsage
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
