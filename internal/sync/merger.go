package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/technician"
	"github.com/vitalone/vitalsync/internal/testrun"
)

// Stats counts what one sync attempt changed in the canonical store.
type Stats struct {
	NewDevices  int
	NewRuns     int
	NewMetrics  int
	FailedUnits int
	Errors      []string
	Abnormal    []AbnormalMetric
}

// RecordsProcessed is the headline counter written to the audit log:
// the number of metrics newly copied into the canonical store.
func (s *Stats) RecordsProcessed() int {
	return s.NewMetrics
}

func (s *Stats) fail(unit string, err error) {
	s.FailedUnits++
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", unit, err))
}

// sourceRepos bundles read access to one source store.
type sourceRepos struct {
	analyzers   analyzer.Repository
	runs        testrun.Repository
	technicians technician.Repository
}

// Merger copies records from a source store into the canonical store.
// Devices are refreshed in place from the source's current state; runs
// and metrics already present are skipped. Replaying an unchanged
// source is a no-op.
type Merger struct {
	canonicalAnalyzers analyzer.Repository
	canonicalRuns      testrun.Repository
	reconciler         *technician.Reconciler
}

// NewMerger creates a merger writing into the given canonical repositories.
func NewMerger(analyzers analyzer.Repository, runs testrun.Repository, reconciler *technician.Reconciler) *Merger {
	return &Merger{
		canonicalAnalyzers: analyzers,
		canonicalRuns:      runs,
		reconciler:         reconciler,
	}
}

// MergeDevice ensures the canonical store carries the source device's
// current state. A missing device is created; an existing one has its
// mutable fields overwritten from the source record. Either way the
// canonical copy is stamped with the store it came from and its
// assigned technician is re-resolved to the canonical identity.
// Returns true when a new row was created.
func (m *Merger) MergeDevice(ctx context.Context, src sourceRepos, dev *analyzer.Analyzer, storeID string) (bool, error) {
	tech, err := m.reconciler.Resolve(ctx, src.technicians, dev.TechnicianID)
	if err != nil {
		return false, fmt.Errorf("resolving technician for device %s: %w", dev.DeviceID, err)
	}

	clone := *dev
	clone.OwningSource = storeID
	clone.TechnicianID = ""
	if tech != nil {
		clone.TechnicianID = tech.ID
	}

	_, err = m.canonicalAnalyzers.GetByID(ctx, dev.DeviceID)
	if err == nil {
		if err := m.canonicalAnalyzers.Update(ctx, &clone); err != nil {
			return false, fmt.Errorf("updating canonical device %s: %w", dev.DeviceID, err)
		}
		return false, nil
	}
	if !errors.Is(err, analyzer.ErrAnalyzerNotFound) {
		return false, fmt.Errorf("checking canonical device %s: %w", dev.DeviceID, err)
	}

	if err := m.canonicalAnalyzers.Create(ctx, &clone); err != nil {
		if !errors.Is(err, analyzer.ErrAnalyzerExists) {
			return false, fmt.Errorf("creating canonical device %s: %w", dev.DeviceID, err)
		}
		// Lost a create race; the row exists now, so apply as an update.
		if err := m.canonicalAnalyzers.Update(ctx, &clone); err != nil {
			return false, fmt.Errorf("updating canonical device %s: %w", dev.DeviceID, err)
		}
		return false, nil
	}
	return true, nil
}

// MergeRun ensures the canonical store has the source run and all of its
// metrics. An already-present run is not duplicated, but metrics the
// earlier copy missed are still filled in, so an interrupted sync heals
// on the next attempt. Returns whether the run row was created and the
// metrics newly added.
func (m *Merger) MergeRun(ctx context.Context, src sourceRepos, run *testrun.Run, storeID string) (bool, []testrun.Metric, error) {
	tech, err := m.reconciler.Resolve(ctx, src.technicians, run.ExecutedBy)
	if err != nil {
		return false, nil, fmt.Errorf("resolving technician for run %s: %w", run.RunID, err)
	}

	clone := *run
	clone.IsFactoryData = true
	clone.OwningSource = storeID
	clone.ExecutedBy = ""
	if tech != nil {
		clone.ExecutedBy = tech.ID
	}

	created := true
	if err := m.canonicalRuns.CreateRun(ctx, &clone); err != nil {
		if !errors.Is(err, testrun.ErrRunExists) {
			return false, nil, fmt.Errorf("creating canonical run %s: %w", run.RunID, err)
		}
		created = false
	}

	metrics, err := src.runs.ListMetrics(ctx, run.RunID)
	if err != nil {
		return created, nil, fmt.Errorf("listing source metrics for run %s: %w", run.RunID, err)
	}

	var added []testrun.Metric
	for i := range metrics {
		metric := metrics[i]
		_, err := m.canonicalRuns.GetMetric(ctx, run.RunID, metric.Kind)
		if err == nil {
			continue
		}
		if !errors.Is(err, testrun.ErrMetricNotFound) {
			return created, added, fmt.Errorf("checking canonical metric %s/%s: %w", run.RunID, metric.Kind, err)
		}

		metric.ID = 0
		if err := m.canonicalRuns.CreateMetric(ctx, &metric); err != nil {
			if errors.Is(err, testrun.ErrMetricExists) {
				continue
			}
			return created, added, fmt.Errorf("creating canonical metric %s/%s: %w", run.RunID, metric.Kind, err)
		}
		added = append(added, metric)
	}
	return created, added, nil
}

// MergeStore walks every device and run in the source store and merges
// them into the canonical store. Individual unit failures are collected
// in the returned stats rather than aborting the whole attempt; only a
// failure to enumerate the source at all is returned as an error.
func (m *Merger) MergeStore(ctx context.Context, src sourceRepos, storeID string) (*Stats, error) {
	devices, err := src.analyzers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing source devices: %w", err)
	}

	stats := &Stats{}
	for i := range devices {
		device := devices[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		created, err := m.MergeDevice(ctx, src, &device, storeID)
		if err != nil {
			stats.fail("device "+device.DeviceID, err)
			continue
		}
		if created {
			stats.NewDevices++
		}

		runs, err := src.runs.ListRunsByDevice(ctx, device.DeviceID)
		if err != nil {
			stats.fail("runs for "+device.DeviceID, err)
			continue
		}
		for j := range runs {
			run := runs[j]
			runCreated, added, err := m.MergeRun(ctx, src, &run, storeID)
			if err != nil {
				stats.fail("run "+run.RunID, err)
			}
			if runCreated {
				stats.NewRuns++
			}
			stats.NewMetrics += len(added)
			for _, metric := range added {
				if !metric.OutOfRange() {
					continue
				}
				stats.Abnormal = append(stats.Abnormal, AbnormalMetric{
					DeviceID:    run.DeviceID,
					RunID:       metric.RunID,
					Kind:        metric.Kind,
					Value:       metric.Value,
					ExpectedMin: metric.ExpectedMin,
					ExpectedMax: metric.ExpectedMax,
				})
			}
		}
	}
	return stats, nil
}
