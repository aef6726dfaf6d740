package ingest

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"rental-sync-backend/config"
	"rental-sync-backend/internal/identity"
	"rental-sync-backend/internal/model"
	"rental-sync-backend/internal/normalize"
	"rental-sync-backend/internal/reconcile"
	"rental-sync-backend/internal/store"
)

// SourceReport carries the per-source counters of one ingestion pass.
type SourceReport struct {
	SourceID      string `json:"sourceId"`
	Fetched       int    `json:"fetched"`
	Accepted      int    `json:"accepted"`
	Rejected      int    `json:"rejected"`
	Skipped       int    `json:"skipped"`
	Created       int    `json:"created"`
	Refreshed     int    `json:"refreshed"`
	Superseded    int    `json:"superseded"`
	ConflictsWon  int    `json:"conflictsWon"`
	ConflictsLost int    `json:"conflictsLost"`
	Stale         int    `json:"stale"`
	Failed        int    `json:"failed"`
	Removed       int    `json:"removed"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"durationMs"`
}

// Report summarizes one ingestion pass across all sources.
type Report struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Sources    []SourceReport `json:"sources"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
}

// Scheduler drives periodic ingestion passes over the configured sources.
type Scheduler struct {
	cfg        *config.Config
	store      store.Store
	normalizer *normalize.Normalizer
	reconciler *reconcile.Reconciler
	sources    []Source

	mu          sync.RWMutex
	lastReport  *Report
	lastSuccess time.Time
}

// NewScheduler creates the ingestion scheduler. Feed adapters are built from
// the configured sources; tests pass their own sources to RunOnce directly.
func NewScheduler(cfg *config.Config, st store.Store, rec *reconcile.Reconciler) *Scheduler {
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		log.Printf("Warning: invalid timezone %q: %v. Dates will be interpreted in UTC.", cfg.Ingest.Timezone, err)
		loc = time.UTC
	}

	sources := make([]Source, 0, len(cfg.Ingest.Sources))
	for _, sc := range cfg.Ingest.Sources {
		sources = append(sources, NewFeedSource(sc, cfg.Ingest.SourceTimeout))
	}

	return &Scheduler{
		cfg:        cfg,
		store:      st,
		normalizer: normalize.New(identity.NewGenerator(), loc, cfg.Ingest.RetentionPastMonths, cfg.Ingest.RetentionFutureMonths),
		reconciler: rec,
		sources:    sources,
	}
}

// Run starts the ingestion loop and the periodic invariant audit.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Ingest.Enabled {
		log.Println("Ingestion is disabled. Not starting.")
		return
	}
	log.Println("Starting ingestion scheduler...")

	s.RunOnce(ctx, s.sources)

	timer := time.NewTimer(s.cfg.Ingest.Interval)
	defer timer.Stop()
	auditTimer := time.NewTimer(s.cfg.Scheduler.AuditInterval)
	defer auditTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ingestion scheduler shutting down.")
			return
		case <-timer.C:
			s.RunOnce(ctx, s.sources)
			timer.Reset(s.cfg.Ingest.Interval)
		case <-auditTimer.C:
			if n, err := s.reconciler.AuditInvariants(ctx); err != nil {
				log.Printf("Error auditing reservation invariants: %v", err)
			} else if n > 0 {
				log.Printf("Invariant audit retired %d duplicate active records", n)
			}
			auditTimer.Reset(s.cfg.Scheduler.AuditInterval)
		}
	}
}

// RunOnce executes a single ingestion pass over the given sources with a
// bounded worker pool. One source failing is counted in the report and never
// aborts the others.
func (s *Scheduler) RunOnce(ctx context.Context, sources []Source) Report {
	log.Println("Executing ingestion pass...")
	report := Report{StartedAt: time.Now().UTC()}

	if len(sources) > 0 {
		jobs := make(chan Source)
		results := make(chan SourceReport, len(sources))

		workers := s.cfg.Ingest.Concurrency
		if workers < 1 {
			workers = 1
		}
		if workers > len(sources) {
			workers = len(sources)
		}

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for src := range jobs {
					// All sources in a pass share one observation instant;
					// same-pass recency ties fall to source authority
					// instead of worker timing.
					results <- s.ingestSource(ctx, src, report.StartedAt)
				}
			}()
		}

		for _, src := range sources {
			jobs <- src
		}
		close(jobs)
		wg.Wait()
		close(results)

		byID := make(map[string]SourceReport, len(sources))
		for sr := range results {
			byID[sr.SourceID] = sr
		}
		for _, src := range sources {
			sr := byID[src.ID()]
			report.Sources = append(report.Sources, sr)
			if sr.Error == "" {
				report.Succeeded++
			} else {
				report.Failed++
			}
		}
	}

	report.FinishedAt = time.Now().UTC()

	s.mu.Lock()
	s.lastReport = &report
	if report.Failed == 0 {
		s.lastSuccess = report.FinishedAt
	}
	s.mu.Unlock()

	log.Printf("Ingestion pass finished: %d/%d sources succeeded in %s",
		report.Succeeded, len(sources), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report
}

// LastReport returns the most recent pass report and the time of the last
// pass in which every source succeeded. The report is nil until a pass runs.
func (s *Scheduler) LastReport() (*Report, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport, s.lastSuccess
}

// ingestSource fetches one source's snapshot, normalizes the observations in
// received order, applies them, and detects removals.
func (s *Scheduler) ingestSource(ctx context.Context, src Source, observedAt time.Time) SourceReport {
	begin := time.Now()
	sr := SourceReport{SourceID: src.ID()}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.Ingest.SourceTimeout)
	raws, err := src.Fetch(fctx)
	cancel()
	if err != nil {
		log.Printf("Error fetching source %s: %v", src.ID(), err)
		sr.Error = err.Error()
		sr.DurationMS = time.Since(begin).Milliseconds()
		return sr
	}
	sr.Fetched = len(raws)

	observed := make(map[string]bool, len(raws))
	resolved := make(map[string]bool)
	properties := make(map[string]model.Property)
	aborted := false

	for _, raw := range raws {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		res := s.normalizer.Normalize(raw, src.ID(), observedAt)
		switch res.Disposition {
		case normalize.DispositionRejected:
			sr.Rejected++
			log.Printf("Source %s: rejected observation (%s): uid=%q property=%q",
				src.ID(), res.Reason, raw.RawUID, raw.PropertyID)
			continue
		case normalize.DispositionSkipped:
			sr.Skipped++
			continue
		}
		sr.Accepted++

		ev := res.Event
		if ev.Placeholder {
			log.Printf("Warning: source %s sent an observation without a uid; assigned placeholder %s (property %q, check-in %s)",
				src.ID(), ev.CompositeUID, raw.PropertyID, ev.CheckIn.Format("2006-01-02"))
		}
		observed[ev.CompositeUID] = true
		properties[ev.PropertyID] = model.Property{ID: ev.PropertyID, DisplayName: ev.PropertyLabel, LastSource: src.ID()}

		// The record in flight finishes even when the pass is cancelled;
		// the check at the top of the loop stops us before the next one.
		out, err := s.reconciler.Apply(context.WithoutCancel(ctx), ev)
		if err != nil {
			sr.Failed++
			log.Printf("Error applying event %s from source %s: %v", ev.CompositeUID, src.ID(), err)
			continue
		}
		for _, uid := range out.ResolvedUIDs {
			resolved[uid] = true
		}

		switch out.Outcome {
		case reconcile.OutcomeCreated:
			sr.Created++
		case reconcile.OutcomeRefreshed:
			sr.Refreshed++
		case reconcile.OutcomeSuperseded:
			sr.Superseded++
		case reconcile.OutcomeConflictWon:
			sr.ConflictsWon++
		case reconcile.OutcomeConflictLost:
			sr.ConflictsLost++
		case reconcile.OutcomeSkipped:
			sr.Stale++
		}
	}

	if len(properties) > 0 {
		ids := make([]string, 0, len(properties))
		for id := range properties {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		props := make([]model.Property, 0, len(ids))
		for _, id := range ids {
			props = append(props, properties[id])
		}
		if err := s.store.UpsertProperties(context.WithoutCancel(ctx), props); err != nil {
			log.Printf("Error upserting properties from source %s: %v", src.ID(), err)
		}
	}

	if aborted {
		sr.Error = "ingestion aborted: " + ctx.Err().Error()
	} else {
		// Absence detection needs the full snapshot; never run it against a
		// partially processed feed.
		removed, err := s.reconciler.DetectRemovals(context.WithoutCancel(ctx), src.ID(), observed, resolved, observedAt)
		if err != nil {
			log.Printf("Error detecting removals for source %s: %v", src.ID(), err)
			sr.Error = err.Error()
		} else {
			sr.Removed = len(removed)
		}
	}

	sr.DurationMS = time.Since(begin).Milliseconds()
	return sr
}
