// vitalsync-seed populates a source store with sample factory data.
//
// It is a development and demo tool: point it at the service
// configuration, name a source store, and it writes a handful of
// analyzers with test runs and metrics using the default expected
// bands for each metric kind. Running it twice against the same store
// fails on the duplicate run ids, which keeps accidental double
// seeding visible.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	_ "github.com/vitalone/vitalsync/migrations"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/infrastructure/config"
	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/routing"
	"github.com/vitalone/vitalsync/internal/technician"
	"github.com/vitalone/vitalsync/internal/testrun"
)

// Default expected bands per metric kind, matching the reference
// ranges the factory software ships with.
var defaultBands = map[string][2]float64{
	testrun.MetricHemoglobin: {12.0, 17.5},
	testrun.MetricWhiteCells: {4.0, 11.0},
	testrun.MetricPlatelets:  {150.0, 450.0},
	testrun.MetricGlucose:    {3.9, 6.1},
}

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to service configuration")
		sourceName = flag.String("source", "", "name of the source store to seed (required)")
		devices    = flag.Int("devices", 3, "number of analyzers to create")
		runs       = flag.Int("runs", 5, "number of runs per analyzer")
	)
	flag.Parse()

	if *sourceName == "" {
		fmt.Fprintln(os.Stderr, "Error: -source is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), *configPath, *sourceName, *devices, *runs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, sourceName string, devices, runsPerDevice int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	stores, err := database.OpenAll(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer stores.Close()

	if err := stores.MigrateAll(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	storeID := routing.StoreIDForSource(sourceName)
	db, err := stores.Store(storeID)
	if err != nil {
		return fmt.Errorf("resolving store for %q: %w", sourceName, err)
	}

	if err := seed(ctx, db, sourceName, devices, runsPerDevice); err != nil {
		return err
	}

	fmt.Printf("Seeded %d analyzers with %d runs each into %s (%s)\n",
		devices, runsPerDevice, sourceName, storeID)
	return nil
}

// seed writes technicians, analyzers, runs and metrics into one store.
func seed(ctx context.Context, db *database.DB, sourceName string, devices, runsPerDevice int) error {
	techRepo := technician.NewSQLiteRepository(db.DB)
	analyzerRepo := analyzer.NewSQLiteRepository(db.DB)
	runRepo := testrun.NewSQLiteRepository(db.DB)

	techs := []*technician.Technician{
		{Username: "avasquez", Email: "avasquez@example.com", FirstName: "Ana", LastName: "Vasquez", IsStaff: true, IsActive: true},
		{Username: "jokafor", Email: "jokafor@example.com", FirstName: "Jon", LastName: "Okafor", IsActive: true},
	}
	for _, tech := range techs {
		if err := techRepo.Create(ctx, tech); err != nil {
			return fmt.Errorf("creating technician %s: %w", tech.Username, err)
		}
	}

	prefix := deviceIDPrefix(sourceName)
	now := time.Now().UTC()

	for d := 1; d <= devices; d++ {
		calibrated := now.AddDate(0, 0, -rand.Intn(25))
		dev := &analyzer.Analyzer{
			DeviceID:          fmt.Sprintf("%s-%03d", prefix, d),
			DeviceType:        "core",
			Status:            analyzer.StatusActive,
			LastCalibration:   &calibrated,
			Location:          fmt.Sprintf("%s / bench %d", sourceName, d),
			ManufacturingDate: now.AddDate(-1, 0, 0),
			TechnicianID:      techs[d%len(techs)].ID,
		}
		if err := analyzerRepo.Create(ctx, dev); err != nil {
			return fmt.Errorf("creating analyzer %s: %w", dev.DeviceID, err)
		}

		for r := 1; r <= runsPerDevice; r++ {
			run := &testrun.Run{
				RunID:         fmt.Sprintf("%s-R%04d", dev.DeviceID, r),
				DeviceID:      dev.DeviceID,
				RunKind:       runKind(r),
				Timestamp:     now.Add(-time.Duration(r) * time.Hour),
				IsFactoryData: true,
				ExecutedBy:    techs[r%len(techs)].ID,
			}
			if err := runRepo.CreateRun(ctx, run); err != nil {
				return fmt.Errorf("creating run %s: %w", run.RunID, err)
			}

			for kind, band := range defaultBands {
				m := &testrun.Metric{
					RunID:       run.RunID,
					Kind:        kind,
					Value:       sampleValue(band),
					ExpectedMin: band[0],
					ExpectedMax: band[1],
				}
				if err := runRepo.CreateMetric(ctx, m); err != nil {
					return fmt.Errorf("creating %s metric for %s: %w", kind, run.RunID, err)
				}
			}
		}
	}

	return nil
}

// deviceIDPrefix derives a short device id prefix from the source name,
// e.g. "Factory A" becomes "FA".
func deviceIDPrefix(sourceName string) string {
	prefix := ""
	for _, c := range sourceName {
		if c >= 'A' && c <= 'Z' {
			prefix += string(c)
		}
	}
	if prefix == "" {
		prefix = "DEV"
	}
	return prefix
}

// runKind cycles through the run kinds, weighting toward production.
func runKind(n int) string {
	switch n % 5 {
	case 0:
		return testrun.KindQC
	case 4:
		return testrun.KindMaintenance
	default:
		return testrun.KindProduction
	}
}

// sampleValue draws a value around the band, occasionally outside it so
// seeded data exercises the abnormal flagging path.
func sampleValue(band [2]float64) float64 {
	span := band[1] - band[0]
	v := band[0] + rand.Float64()*span
	if rand.Intn(10) == 0 {
		v = band[1] + span*0.2
	}
	return v
}
