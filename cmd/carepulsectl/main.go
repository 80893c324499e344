// carepulsectl builds, exports and verifies behavioral risk reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"carepulse/internal/config"
	"carepulse/internal/engine"
	"carepulse/internal/gather"
	"carepulse/internal/logging"
	"carepulse/internal/metrics"
	"carepulse/internal/record"
	"carepulse/internal/report"
	"carepulse/internal/rulebook"
	"carepulse/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errUsage marks an error that has already printed usage text.
var errUsage = errors.New("usage")

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("carepulsectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	showMetrics := fs.Bool("metrics", false, "print engine metrics to stderr on exit")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		usage(stderr)
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "help" {
		usage(stdout)
		return 0
	}

	a, err := newApp(*configPath, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "build":
		err = a.cmdBuild(rest)
	case "import":
		err = a.cmdImport(rest)
	case "export":
		err = a.cmdExport(rest)
	case "verify":
		err = a.cmdVerify(rest)
	case "reports":
		err = a.cmdReports(rest)
	case "keygen":
		err = a.cmdKeygen(rest)
	case "rulebook":
		err = a.cmdRulebook(rest)
	case "watch":
		err = a.cmdWatch(rest)
	case "metrics":
		err = a.cmdMetrics(rest)
	case "health":
		err = a.cmdHealth(rest)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		usage(stderr)
		return 1
	}

	if *showMetrics {
		a.metrics.Registry().WritePrometheus(stderr)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `carepulsectl - behavioral risk aggregation and clinical summaries

Usage: carepulsectl [options] <command> [args]

Commands:
  build <subject>                  Build a report and print it
  import <subject> <snapshot.json> Load raw source records into the store
  export <subject> [output.json]   Export a report (signed when a key is configured)
  verify <export.json>             Verify a signed export
  reports <subject>                List stored reports
  keygen                           Create the export signing key pair
  rulebook check <file>            Validate a rulebook file
  watch <subject>                  Rebuild whenever the rulebook changes
  metrics                          List the engine metric series
  health                           Check store, rulebook, signing key and export dir
  help                             Show this help message

Window options (build, export, watch):
  -from YYYY-MM-DD   First day of the window
  -to YYYY-MM-DD     Last day of the window (default: today)
  -days N            Window length in days (default: engine.lookback_days)

Options:
  -config <path>     Path to config file (default: first config.{toml,json,yaml,yml}
                     in the working, config or data directory)
  -metrics           Print engine metrics to stderr on exit`)
}

// app carries the configured collaborators for one invocation.
type app struct {
	cfg     *config.Config
	stdout  io.Writer
	stderr  io.Writer
	logger  *logging.Logger
	audit   *logging.AuditLogger
	metrics *metrics.EngineMetrics
	now     func() time.Time
}

func newApp(configPath string, stdout, stderr io.Writer) (*app, error) {
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lc, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return nil, err
	}
	if lc.Output == "stderr" {
		lc.Writer = stderr
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	audit := logging.NopAuditLogger()
	if cfg.Audit.Enabled {
		audit, err = logging.NewAuditLogger(cfg.Audit.AuditLoggerConfig())
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("create audit log: %w", err)
		}
	}

	return &app{
		cfg:     cfg,
		stdout:  stdout,
		stderr:  stderr,
		logger:  logger,
		audit:   audit,
		metrics: metrics.NewEngineMetrics(metrics.NewRegistry("carepulse", "engine")),
		now:     time.Now,
	}, nil
}

func (a *app) close() {
	a.audit.Close()
	a.logger.Close()
}

func (a *app) openStore() (*store.Store, error) {
	path := a.cfg.Storage.Path
	if a.cfg.Storage.Type == "memory" {
		path = store.MemoryPath
	}
	return store.OpenWithOptions(path, store.Options{
		MaxConnections: a.cfg.Storage.MaxConnections,
		BusyTimeout:    time.Duration(a.cfg.Storage.BusyTimeoutMs) * time.Millisecond,
	})
}

// loadEngine loads the rulebook at path (empty for the embedded default)
// and constructs an engine around it.
func (a *app) loadEngine(ctx context.Context, path string) (*engine.Engine, error) {
	rb, err := rulebook.Load(path)
	if err != nil {
		a.audit.LogRulebookReloadFailed(ctx, sourceName(path), err)
		return nil, err
	}
	eng, err := engine.New(rb, engine.Options{
		Timezone: a.cfg.Engine.Timezone,
		Logger:   a.logger,
		Audit:    a.audit,
		Metrics:  a.metrics,
	})
	if err != nil {
		return nil, err
	}
	a.audit.LogRulebookLoaded(ctx, rb.Version, rb.Source)
	return eng, nil
}

func sourceName(path string) string {
	if path == "" {
		return "embedded:default.toml"
	}
	return path
}

// build gathers the subject's records from the store and builds a report.
func (a *app) build(ctx context.Context, eng *engine.Engine, st *store.Store, subjectID string, w record.TimeWindow) (*report.Report, error) {
	g, err := gather.New(gather.Options{
		Policy:  gather.Policy(a.cfg.Sources.FailurePolicy),
		Timeout: a.cfg.Sources.FetchTimeout(),
		Logger:  a.logger,
		Audit:   a.audit,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}
	snap, err := g.Gather(ctx, subjectID, w, st.Sources())
	if err != nil {
		return nil, fmt.Errorf("gather records: %w", err)
	}
	r, err := eng.Build(ctx, subjectID, w, snap)
	if err != nil {
		return nil, err
	}
	if a.cfg.Export.Persist {
		if err := st.SaveReport(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// windowFlags registers -from, -to and -days on fs.
type windowFlags struct {
	from, to string
	days     int
}

func (wf *windowFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&wf.from, "from", "", "first day of the window (YYYY-MM-DD)")
	fs.StringVar(&wf.to, "to", "", "last day of the window (YYYY-MM-DD)")
	fs.IntVar(&wf.days, "days", 0, "window length in days")
}

const dateLayout = "2006-01-02"

// window resolves the flags into whole calendar days in loc. -to defaults
// to today; the start comes from -from, else -days, else lookback.
func (wf *windowFlags) window(now time.Time, loc *time.Location, lookback int) (record.TimeWindow, error) {
	endDay := record.DayOf(now, loc)
	if wf.to != "" {
		d, err := time.ParseInLocation(dateLayout, wf.to, loc)
		if err != nil {
			return record.TimeWindow{}, fmt.Errorf("invalid -to date %q", wf.to)
		}
		endDay = d
	}

	var startDay time.Time
	switch {
	case wf.from != "":
		d, err := time.ParseInLocation(dateLayout, wf.from, loc)
		if err != nil {
			return record.TimeWindow{}, fmt.Errorf("invalid -from date %q", wf.from)
		}
		startDay = d
	case wf.days < 0:
		return record.TimeWindow{}, fmt.Errorf("-days must be positive")
	default:
		days := wf.days
		if days == 0 {
			days = lookback
		}
		startDay = endDay.AddDate(0, 0, -(days - 1))
	}

	w := record.TimeWindow{Start: startDay, End: endDay.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	if err := w.Validate(); err != nil {
		return record.TimeWindow{}, fmt.Errorf("-from must not be after -to")
	}
	return w, nil
}
