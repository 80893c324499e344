package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"carepulse/internal/config"
	"carepulse/internal/engine"
	"carepulse/internal/health"
	"carepulse/internal/record"
	"carepulse/internal/report"
	"carepulse/internal/rulebook"
	"carepulse/internal/schemavalidation"
	"carepulse/internal/signer"
)

// parse runs fs over args and checks the positional count.
func (a *app) parse(fs *flag.FlagSet, args []string, minArgs, maxArgs int, synopsis string) error {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < minArgs || (maxArgs >= 0 && fs.NArg() > maxArgs) {
		fmt.Fprintf(a.stderr, "Usage: carepulsectl %s\n", synopsis)
		return errUsage
	}
	return nil
}

func (a *app) resolveWindow(wf *windowFlags, eng *engine.Engine) (record.TimeWindow, error) {
	return wf.window(a.now(), eng.Location(), a.cfg.Engine.LookbackDays)
}

func (a *app) cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	var wf windowFlags
	wf.register(fs)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := a.parse(fs, args, 1, 1, "build [-json] [-from D] [-to D] [-days N] <subject>"); err != nil {
		return err
	}

	ctx := context.Background()
	eng, err := a.loadEngine(ctx, a.cfg.Engine.RulebookPath)
	if err != nil {
		return err
	}
	w, err := a.resolveWindow(&wf, eng)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := a.build(ctx, eng, st, fs.Arg(0), w)
	if err != nil {
		return err
	}
	if *asJSON {
		return report.WriteJSON(a.stdout, r)
	}
	report.Print(a.stdout, r)
	return nil
}

func (a *app) cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	if err := a.parse(fs, args, 2, 2, "import <subject> <snapshot.json>"); err != nil {
		return err
	}
	subjectID, path := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap record.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	n, err := st.Import(ctx, subjectID, &snap)
	if err != nil {
		return err
	}
	counts, err := st.CountRecords(ctx, subjectID)
	if err != nil {
		return err
	}

	a.logger.Info("snapshot imported", "subject_id", subjectID, "rows", n)
	fmt.Fprintf(a.stdout, "Imported %d records for %s\n", n, subjectID)
	for _, domain := range record.Domains {
		fmt.Fprintf(a.stdout, "  %-14s %d stored\n", domain, counts[domain])
	}
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var wf windowFlags
	wf.register(fs)
	unsigned := fs.Bool("unsigned", false, "skip signing even when a key is configured")
	if err := a.parse(fs, args, 1, 2, "export [-unsigned] [-from D] [-to D] [-days N] <subject> [output.json]"); err != nil {
		return err
	}
	subjectID := fs.Arg(0)

	ctx := context.Background()
	eng, err := a.loadEngine(ctx, a.cfg.Engine.RulebookPath)
	if err != nil {
		return err
	}
	w, err := a.resolveWindow(&wf, eng)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := a.build(ctx, eng, st, subjectID, w)
	if err != nil {
		return err
	}
	payload, err := report.Marshal(r)
	if err != nil {
		return err
	}

	out := payload
	signed := false
	if key := a.cfg.Signing.KeyPath; key != "" && !*unsigned {
		priv, err := signer.LoadSigningKey(key, a.cfg.Signing.Passphrase())
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		env, err := signer.Seal(priv, payload)
		if err != nil {
			return err
		}
		if out, err = env.Marshal(); err != nil {
			return err
		}
		signed = true
	}

	if a.cfg.Export.ValidateSchema {
		validate := schemavalidation.ValidateReport
		if signed {
			validate = schemavalidation.ValidateEnvelope
		}
		if err := validate(out); err != nil {
			return fmt.Errorf("export failed validation: %w", err)
		}
	}

	outputPath := fs.Arg(1)
	if outputPath == "" {
		outputPath = filepath.Join(a.cfg.Export.Dir, r.ID+".json")
	}
	if err := os.WriteFile(outputPath, out, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	a.metrics.RecordExport()
	a.audit.LogExport(ctx, subjectID, r.ID, outputPath, signed)
	a.logger.Info("report exported", "report_id", r.ID, "signed", signed)

	fmt.Fprintf(a.stdout, "Report %s exported to %s", r.ID, outputPath)
	if signed {
		fmt.Fprint(a.stdout, " (signed)")
	}
	fmt.Fprintln(a.stdout)
	return nil
}

func (a *app) cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	pubPath := fs.String("key", "", "trusted public key (default: signing.public_key_path)")
	if err := a.parse(fs, args, 1, 1, "verify [-key pub] <export.json>"); err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	env, err := signer.ParseEnvelope(data)
	if err != nil {
		return err
	}

	var trusted ed25519.PublicKey
	keyPath := *pubPath
	if keyPath == "" {
		keyPath = a.cfg.Signing.PublicKeyPath
	}
	if keyPath != "" {
		trusted, err = signer.LoadPublicKey(keyPath)
		switch {
		case err == nil:
		case *pubPath == "" && errors.Is(err, os.ErrNotExist):
			trusted = nil
		default:
			return fmt.Errorf("load public key: %w", err)
		}
	}

	payload, err := env.Open(trusted)
	if err != nil {
		fmt.Fprintln(a.stdout, "Verification: FAILED")
		return err
	}
	if err := schemavalidation.ValidateEnvelope(data); err != nil {
		fmt.Fprintln(a.stdout, "Verification: FAILED")
		return err
	}
	r, err := report.Unmarshal(payload)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "Verification: OK")
	fmt.Fprintf(a.stdout, "  Report:  %s\n", r.ID)
	fmt.Fprintf(a.stdout, "  Subject: %s\n", r.SubjectID)
	fmt.Fprintf(a.stdout, "  Signer:  %s\n", env.PublicKey)
	if trusted == nil {
		fmt.Fprintln(a.stdout, "  Warning: no trusted key configured; origin not checked")
	}
	fmt.Fprintf(a.stdout, "  Summary: %s\n", r.Summary)
	return nil
}

func (a *app) cmdReports(args []string) error {
	fs := flag.NewFlagSet("reports", flag.ContinueOnError)
	if err := a.parse(fs, args, 1, 1, "reports <subject>"); err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListReports(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.stdout, "No stored reports.")
		return nil
	}

	fmt.Fprintf(a.stdout, "%-36s  %-10s  %-10s  %s\n", "Report", "From", "To", "Rulebook")
	fmt.Fprintln(a.stdout, strings.Repeat("-", 72))
	for _, info := range infos {
		fmt.Fprintf(a.stdout, "%-36s  %-10s  %-10s  %s\n",
			info.ID, info.Window.Start.Format(dateLayout), info.Window.End.Format(dateLayout), info.RulebookVersion)
	}
	return nil
}

func (a *app) cmdKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	if err := a.parse(fs, args, 0, 0, "keygen"); err != nil {
		return err
	}

	keyPath := a.cfg.Signing.KeyPath
	if keyPath == "" {
		keyPath = filepath.Join(config.DataDir(), "export_key")
	}
	pubPath := a.cfg.Signing.PublicKeyPath
	if pubPath == "" {
		pubPath = keyPath + ".pub"
	}

	pub, err := signer.GenerateKey(keyPath, pubPath)
	if err != nil {
		return err
	}
	line, err := signer.AuthorizedKey(pub)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Private key: %s\n", keyPath)
	fmt.Fprintf(a.stdout, "Public key:  %s\n", pubPath)
	fmt.Fprintf(a.stdout, "  %s\n", line)
	if a.cfg.Signing.KeyPath == "" {
		fmt.Fprintf(a.stdout, "Set signing.key_path = %q to sign exports.\n", keyPath)
	}
	return nil
}

func (a *app) cmdRulebook(args []string) error {
	if len(args) < 2 || args[0] != "check" {
		fmt.Fprintln(a.stderr, "Usage: carepulsectl rulebook check <file>")
		return errUsage
	}

	rb, err := rulebook.Load(args[1])
	if err != nil {
		fmt.Fprintln(a.stdout, "Rulebook: INVALID")
		var verrs rulebook.ValidationErrors
		if errors.As(err, &verrs) {
			for _, msg := range verrs {
				fmt.Fprintf(a.stdout, "  - %s\n", msg)
			}
		}
		return err
	}

	direct := len(rb.HRS.Direct)
	fmt.Fprintln(a.stdout, "Rulebook: OK")
	fmt.Fprintf(a.stdout, "  Version:         %s\n", rb.Version)
	fmt.Fprintf(a.stdout, "  SDOH terms:      %d (%s)\n", len(rb.SDOH), strings.Join(rb.Categories(), ", "))
	fmt.Fprintf(a.stdout, "  HRS terms:       %d direct, %d indirect\n", direct, len(rb.HRS.Indirect))
	fmt.Fprintf(a.stdout, "  Clinical rules:  %d\n", len(rb.Thresholds.Clinical))
	fmt.Fprintf(a.stdout, "  Trend threshold: %g\n", rb.Trend.Threshold)
	return nil
}

func (a *app) cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var wf windowFlags
	wf.register(fs)
	if err := a.parse(fs, args, 1, 1, "watch [-from D] [-to D] [-days N] <subject>"); err != nil {
		return err
	}
	subjectID := fs.Arg(0)
	path := a.cfg.Engine.RulebookPath
	if path == "" {
		return errors.New("watch needs engine.rulebook_path; the embedded rulebook never changes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := a.loadEngine(ctx, path)
	if err != nil {
		return err
	}
	holder := engine.NewHolder(eng)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rebuild := func() {
		current := holder.Load()
		w, err := a.resolveWindow(&wf, current)
		if err != nil {
			a.logger.Error("resolve window", "error", err)
			return
		}
		r, err := a.build(ctx, current, st, subjectID, w)
		if err != nil {
			a.logger.Error("rebuild failed", "subject_id", subjectID, "error", err)
			return
		}
		fmt.Fprintf(a.stdout, "[%s] rulebook %s: %s\n", a.now().Format("15:04:05"), r.RulebookVersion, r.Summary)
	}
	rebuild()

	watcher, err := config.WatchFile(path, config.DefaultDebounce, func() {
		next, err := a.loadEngine(ctx, path)
		if err != nil {
			// Keep serving the last good rulebook.
			a.logger.Warn("rulebook reload rejected", "path", path, "error", err)
			return
		}
		holder.Swap(next)
		a.metrics.RecordRulebookReload()
		a.logger.Info("rulebook reloaded", "version", next.Rulebook().Version)
		rebuild()
	}, func(err error) {
		a.logger.Warn("rulebook watcher error", "error", err)
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	fmt.Fprintf(a.stderr, "Watching %s (Ctrl-C to stop)\n", path)
	<-ctx.Done()
	return nil
}

func (a *app) cmdMetrics(args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := a.parse(fs, args, 0, 0, "metrics [-json]"); err != nil {
		return err
	}
	if *asJSON {
		return a.metrics.Registry().WriteJSON(a.stdout)
	}
	return a.metrics.Registry().WritePrometheus(a.stdout)
}

func (a *app) cmdHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := a.parse(fs, args, 0, 0, "health [-json]"); err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	checker := health.NewChecker()
	checker.RegisterFunc("store", true, health.StoreCheck(st))
	checker.RegisterFunc("rulebook", true, health.RulebookCheck(a.cfg.Engine.RulebookPath))
	checker.RegisterFunc("signing", false, health.SigningKeyCheck(a.cfg.Signing.KeyPath, a.cfg.Signing.PublicKeyPath, a.cfg.Signing.Passphrase()))
	checker.RegisterFunc("export_dir", false, health.WritableDirCheck(a.cfg.Export.Dir))

	results := checker.Check(context.Background())
	overall := checker.OverallStatus()

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"status": overall, "components": results}); err != nil {
			return err
		}
	} else {
		for _, name := range checker.Names() {
			res := results[name]
			line := fmt.Sprintf("  %-10s  %-9s  %s", name, res.Status, res.Message)
			if res.Error != "" {
				line += ": " + res.Error
			}
			fmt.Fprintln(a.stdout, line)
		}
		fmt.Fprintf(a.stdout, "Health: %s\n", strings.ToUpper(string(overall)))
	}

	if overall == health.StatusUnhealthy {
		return errors.New("a critical component is unhealthy")
	}
	return nil
}
