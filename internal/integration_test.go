//go:build integration

// Package internal provides integration tests for the carepulse report pipeline.
//
// These tests run the complete path a report takes:
// 1. Import raw source records into the SQLite store
// 2. Gather them concurrently under a failure policy
// 3. Build the report with a rulebook-configured engine
// 4. Persist, sign, schema-check and verify the export
package internal

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"carepulse/internal/engine"
	"carepulse/internal/gather"
	"carepulse/internal/record"
	"carepulse/internal/report"
	"carepulse/internal/rulebook"
	"carepulse/internal/schemavalidation"
	"carepulse/internal/signer"
	"carepulse/internal/store"
	"carepulse/internal/textscan"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := day0.AddDate(0, 0, days)
	return &t
}

func ptr[T any](v T) *T { return &v }

func week() record.TimeWindow {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return record.TimeWindow{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
}

func seed(t *testing.T, st *store.Store, subjectID string) {
	t.Helper()
	snap := &record.Snapshot{
		Journal: []record.JournalEntry{
			{CreatedAt: at(0), Content: ptr("behind on rent again this month"), MoodTag: ptr("anxious")},
			{CreatedAt: at(2), Content: ptr("everything feels hopeless"), MoodTag: ptr("sad")},
		},
		Assessments: []record.Assessment{{CompletedAt: at(3), Type: ptr("PHQ-9"), Score: ptr(18.0)}},
		Sleep:       []record.SleepEntry{{Date: at(1), Quality: ptr(2.0), Hours: ptr(4.5)}},
		Toolkit:     []record.ToolkitSession{{CreatedAt: at(4), Tool: ptr("breathing"), DurationMinutes: ptr(10.0)}},
	}
	for i, v := range []float64{5, 4, 4, 3, 2, 2} {
		snap.Mood = append(snap.Mood, record.MoodEntry{CreatedAt: at(i), Score: ptr(v)})
	}
	if _, err := st.Import(context.Background(), subjectID, snap); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
}

// =============================================================================
// INTEGRATION: Full Report Pipeline
// =============================================================================

func TestFullReportPipeline(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "carepulse.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	seed(t, st, "sub-7")

	// Step 1: gather, with one upstream source down
	src := st.Sources()
	src.Badges = func(context.Context, string, record.TimeWindow) ([]record.Badge, error) {
		return nil, errors.New("badge service unavailable")
	}
	snap, err := gather.Gather(ctx, "sub-7", week(), src, gather.Degrade)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	// Step 2: build
	eng, err := engine.New(rulebook.Default(), engine.Options{})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	r, err := eng.Build(ctx, "sub-7", week(), snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(r.DegradedSources) != 1 || r.DegradedSources[0] != record.DomainBadges {
		t.Errorf("expected badges degraded, got %v", r.DegradedSources)
	}
	if r.HRS.RiskLevel != textscan.RiskIndirectOnly {
		t.Errorf("expected indirect-only harm risk, got %s", r.HRS.RiskLevel)
	}
	if len(r.SDOHFlags) == 0 {
		t.Error("expected an SDOH flag for rent arrears")
	}
	if !strings.HasPrefix(r.Summary, "[carepulse summary v1] Subject sub-7, 2024-03-01 to 2024-03-07.") {
		t.Errorf("unexpected summary: %s", r.Summary)
	}

	// Step 3: persist and reload
	if err := st.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	stored, err := st.GetReport(ctx, r.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	want, _ := report.Marshal(r)
	got, _ := report.Marshal(stored)
	if string(want) != string(got) {
		t.Error("stored report differs from built report")
	}
	if bad, err := st.VerifyAllReports(ctx); err != nil || len(bad) != 0 {
		t.Errorf("VerifyAllReports: %v %v", bad, err)
	}

	// Step 4: sign, validate, verify
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	env, err := signer.Seal(priv, want)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := schemavalidation.ValidateEnvelope(data); err != nil {
		t.Fatalf("export failed schema validation: %v", err)
	}
	parsed, err := signer.ParseEnvelope(data)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := parsed.Open(pub)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(payload) != string(want) {
		t.Error("verified payload differs from canonical report")
	}
}

// =============================================================================
// INTEGRATION: Determinism
// =============================================================================

func TestRebuildFromStoreIsIdentical(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	seed(t, st, "sub-7")

	eng, err := engine.New(rulebook.Default(), engine.Options{Timezone: "UTC"})
	if err != nil {
		t.Fatal(err)
	}

	var first []byte
	for i := 0; i < 5; i++ {
		snap, err := gather.Gather(ctx, "sub-7", week(), st.Sources(), gather.Abort)
		if err != nil {
			t.Fatalf("Gather failed: %v", err)
		}
		r, err := eng.Build(ctx, "sub-7", week(), snap)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		data, err := report.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = data
			continue
		}
		if string(data) != string(first) {
			t.Fatalf("build %d differs from first build", i)
		}
	}
}

// =============================================================================
// INTEGRATION: Concurrent builds across a rulebook swap
// =============================================================================

func TestConcurrentBuildsWithRulebookSwap(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "carepulse.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	seed(t, st, "sub-7")

	base, err := engine.New(rulebook.Default(), engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	strict := rulebook.Default()
	strict.Version = "strict"
	strict.Thresholds.MoodLowMean = 9
	next, err := engine.New(strict, engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	holder := engine.NewHolder(base)

	snap, err := gather.Gather(ctx, "sub-7", week(), st.Sources(), gather.Abort)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 16 {
				holder.Swap(next)
			}
			eng := holder.Load()
			r, err := eng.Build(ctx, "sub-7", week(), snap)
			if err != nil {
				errs <- err
				return
			}
			if r.RulebookVersion != eng.Rulebook().Version {
				errs <- errors.New("report carries another engine's rulebook version")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if holder.Load().Rulebook().Version != "strict" {
		t.Error("swap did not publish the new engine")
	}
}
