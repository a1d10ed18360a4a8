package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/routing"
	"github.com/vitalone/vitalsync/internal/source"
	"github.com/vitalone/vitalsync/internal/technician"
	"github.com/vitalone/vitalsync/internal/testrun"
)

// Options tunes orchestration behavior.
type Options struct {
	// StaleLockWindow is how long an in_progress sync log blocks new
	// attempts against the same source.
	StaleLockWindow time.Duration

	// Workers bounds how many sources SyncAll merges concurrently.
	Workers int
}

// Result is the outcome of one source within a fleet-wide sync.
type Result struct {
	SourceName string
	Log        *source.SyncLog
	Err        error
}

// Service orchestrates sync attempts: it locks the source via its audit
// log, pulls records out of the source store, merges them into the
// canonical store, and finalizes the audit row.
type Service struct {
	stores   *database.Manager
	sources  source.Repository
	logs     source.SyncLogRepository
	merger   *Merger
	log      *logging.Logger
	notifier Notifier
	recorder Recorder
	opts     Options
}

// NewService creates a sync service. Notifier and recorder default to
// no-ops until set.
func NewService(stores *database.Manager, sources source.Repository, logs source.SyncLogRepository, merger *Merger, logger *logging.Logger, opts Options) *Service {
	if opts.StaleLockWindow <= 0 {
		opts.StaleLockWindow = 5 * time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Service{
		stores:   stores,
		sources:  sources,
		logs:     logs,
		merger:   merger,
		log:      logger,
		notifier: noopNotifier{},
		recorder: noopRecorder{},
		opts:     opts,
	}
}

// SetNotifier attaches a lifecycle event publisher.
func (s *Service) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// SetRecorder attaches a telemetry sink.
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// SyncSource runs one sync attempt against the named source and returns
// its finalized audit row.
//
// A source never seen before is registered on first sight (kind
// factory, active). Preconditions are then checked in order: the source
// must be active (ErrSourceInactive, recorded as a failed attempt),
// backed by an attached store (ErrStoreUnavailable, also recorded), and
// not already mid-sync (ErrSyncInProgress, which leaves no audit row
// since no attempt started).
func (s *Service) SyncSource(ctx context.Context, name string) (*source.SyncLog, error) {
	src, err := s.resolveSource(ctx, name)
	if err != nil {
		return nil, err
	}

	if !src.IsActive {
		log, ferr := s.recordRefusal(ctx, src.ID, "source is inactive")
		if ferr != nil {
			return nil, ferr
		}
		return log, ErrSourceInactive
	}

	// A source-scoped fetch that falls back to the canonical store has
	// no attached factory database behind it.
	storeID := routing.StoreIDForSource(src.Name)
	resolved := s.stores.Resolver().Resolve(routing.ModelAnalyzer, src.Name)
	if resolved == routing.Canonical {
		log, ferr := s.recordRefusal(ctx, src.ID, fmt.Sprintf("store %s not attached", storeID))
		if ferr != nil {
			return nil, ferr
		}
		return log, fmt.Errorf("%w: %s", ErrStoreUnavailable, storeID)
	}

	store, err := s.stores.Store(resolved)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", resolved, err)
	}

	cutoff := time.Now().UTC().Add(-s.opts.StaleLockWindow)
	active, err := s.logs.HasActiveSince(ctx, src.ID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("checking for concurrent sync: %w", err)
	}
	if active {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, src.Name)
	}

	attempt := &source.SyncLog{SourceID: src.ID}
	if err := s.logs.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("opening sync log: %w", err)
	}

	started := time.Now()
	s.log.Info("sync started", "source", src.Name, "store", string(storeID))

	stats, mergeErr := s.runAttempt(ctx, store, storeID)

	status, errMsg := outcome(stats, mergeErr)
	records := 0
	if stats != nil {
		records = stats.RecordsProcessed()
	}
	if err := s.logs.Finalize(ctx, attempt.ID, status, records, errMsg); err != nil {
		return nil, fmt.Errorf("finalizing sync log: %w", err)
	}
	attempt.Status = status
	attempt.RecordsProcessed = records
	attempt.ErrorMessage = errMsg

	if status == source.StatusSuccess || status == source.StatusPartial {
		if err := s.sources.SetLastSync(ctx, src.ID, time.Now().UTC()); err != nil {
			s.log.Warn("failed to record last sync time", "source", src.Name, "error", err)
		}
	}

	event := Event{
		SourceName:       src.Name,
		StoreID:          string(storeID),
		Status:           status,
		RecordsProcessed: records,
		Duration:         time.Since(started),
		Error:            errMsg,
		Timestamp:        time.Now().UTC(),
	}
	if stats != nil {
		event.NewDevices = stats.NewDevices
		event.NewRuns = stats.NewRuns
	}
	s.notifier.SyncCompleted(event)
	s.recorder.RecordSyncAttempt(event)
	if stats != nil {
		for _, m := range stats.Abnormal {
			s.recorder.RecordAbnormalMetric(m)
		}
	}

	s.log.Info("sync finished",
		"source", src.Name,
		"status", status,
		"records", records,
		"duration", event.Duration.String())

	if status == source.StatusFailed && mergeErr != nil {
		return attempt, mergeErr
	}
	return attempt, nil
}

// resolveSource looks up a source by name, registering it on first
// sight. A concurrent registration race falls back to the winner's row.
func (s *Service) resolveSource(ctx context.Context, name string) (*source.Source, error) {
	src, err := s.sources.GetByName(ctx, name)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, source.ErrSourceNotFound) {
		return nil, fmt.Errorf("looking up source %q: %w", name, err)
	}

	src = &source.Source{Name: name, Kind: source.KindFactory, IsActive: true}
	if createErr := s.sources.Create(ctx, src); createErr != nil {
		if errors.Is(createErr, source.ErrSourceExists) {
			existing, getErr := s.sources.GetByName(ctx, name)
			if getErr != nil {
				return nil, fmt.Errorf("looking up source %q: %w", name, getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("registering source %q: %w", name, createErr)
	}
	s.log.Info("registered source on first sync", "source", name, "id", src.ID)
	return src, nil
}

// runAttempt performs the fetch-and-merge against one attached store.
func (s *Service) runAttempt(ctx context.Context, store *database.DB, storeID routing.StoreID) (*Stats, error) {
	// Remote factory links are slow; the attached-store fetch simulates
	// that latency so operational behavior matches production timing.
	if delay := s.stores.FetchDelay(storeID); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	src := sourceRepos{
		analyzers:   analyzer.NewSQLiteRepository(store.DB),
		runs:        testrun.NewSQLiteRepository(store.DB),
		technicians: technician.NewSQLiteRepository(store.DB),
	}
	return s.merger.MergeStore(ctx, src, string(storeID))
}

// recordRefusal writes a failed audit row for an attempt that could not start.
func (s *Service) recordRefusal(ctx context.Context, sourceID, reason string) (*source.SyncLog, error) {
	log := &source.SyncLog{
		SourceID:     sourceID,
		Status:       source.StatusFailed,
		ErrorMessage: reason,
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("recording refused sync: %w", err)
	}
	return log, nil
}

// outcome maps merge stats onto a terminal audit status.
func outcome(stats *Stats, mergeErr error) (string, string) {
	if mergeErr != nil {
		return source.StatusFailed, mergeErr.Error()
	}
	if stats.FailedUnits > 0 {
		return source.StatusPartial, strings.Join(stats.Errors, "; ")
	}
	return source.StatusSuccess, ""
}

// SyncAll syncs every active source, at most opts.Workers at a time.
// Per-source failures are reported in the results, not returned; only a
// failure to enumerate sources is an error.
func (s *Service) SyncAll(ctx context.Context) ([]Result, error) {
	all, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	var active []source.Source
	for _, src := range all {
		if src.IsActive {
			active = append(active, src)
		}
	}

	results := make([]Result, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range active {
		i := i
		g.Go(func() error {
			log, err := s.SyncSource(gctx, active[i].Name)
			results[i] = Result{SourceName: active[i].Name, Log: log, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Status returns the most recent audit row for the named source.
func (s *Service) Status(ctx context.Context, name string) (*source.SyncLog, error) {
	src, err := s.sources.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up source %q: %w", name, err)
	}
	log, err := s.logs.Latest(ctx, src.ID)
	if err != nil {
		if errors.Is(err, source.ErrLogNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reading sync status for %q: %w", name, err)
	}
	return log, nil
}

// History returns up to limit audit rows for the named source, newest first.
func (s *Service) History(ctx context.Context, name string, limit int) ([]source.SyncLog, error) {
	src, err := s.sources.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up source %q: %w", name, err)
	}
	return s.logs.ListBySource(ctx, src.ID, limit)
}
