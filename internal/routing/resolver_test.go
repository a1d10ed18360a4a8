package routing

import (
	"sort"
	"testing"
)

func TestStoreIDForSource(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected StoreID
	}{
		{name: "simple name", input: "Factory A", expected: "factory_a"},
		{name: "already normalised", input: "factory_c", expected: "factory_c"},
		{name: "mixed case", input: "Cloud Central", expected: "cloud_central"},
		{name: "surrounding whitespace", input: "  Factory A ", expected: "factory_a"},
		{name: "multiple spaces", input: "Legacy Lab Annex", expected: "legacy_lab_annex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StoreIDForSource(tt.input); got != tt.expected {
				t.Errorf("StoreIDForSource(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver([]StoreID{"factory_a", "factory_c"})

	tests := []struct {
		name       string
		model      Model
		sourceName string
		expected   StoreID
	}{
		{name: "system model ignores source", model: ModelSyncLog, sourceName: "Factory A", expected: Canonical},
		{name: "data source is system scoped", model: ModelDataSource, sourceName: "Factory A", expected: Canonical},
		{name: "technician is system scoped", model: ModelTechnician, sourceName: "Factory C", expected: Canonical},
		{name: "analyzer routes to owning source", model: ModelAnalyzer, sourceName: "Factory A", expected: "factory_a"},
		{name: "run routes to owning source", model: ModelTestRun, sourceName: "Factory C", expected: "factory_c"},
		{name: "unknown source falls back to canonical", model: ModelAnalyzer, sourceName: "Factory B", expected: Canonical},
		{name: "empty source falls back to canonical", model: ModelTestRun, sourceName: "", expected: Canonical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.model, tt.sourceName); got != tt.expected {
				t.Errorf("Resolve(%v, %q) = %q, want %q", tt.model, tt.sourceName, got, tt.expected)
			}
		})
	}
}

func TestResolver_ResolveMetric(t *testing.T) {
	r := NewResolver([]StoreID{"factory_a"})

	// A metric follows its parent run's owning source.
	if got := r.ResolveMetric("Factory A"); got != StoreID("factory_a") {
		t.Errorf("ResolveMetric(%q) = %q, want %q", "Factory A", got, "factory_a")
	}
	// And falls back to canonical like the run itself would.
	if got := r.ResolveMetric(""); got != Canonical {
		t.Errorf("ResolveMetric(\"\") = %q, want canonical", got)
	}
}

func TestResolver_MigrationTargets(t *testing.T) {
	r := NewResolver([]StoreID{"factory_a", "factory_c"})

	t.Run("system models target canonical only", func(t *testing.T) {
		targets := r.MigrationTargets(ModelSyncLog)
		if len(targets) != 1 || targets[0] != Canonical {
			t.Errorf("MigrationTargets(ModelSyncLog) = %v, want [canonical]", targets)
		}
	})

	t.Run("source models target every store", func(t *testing.T) {
		targets := r.MigrationTargets(ModelTestRun)
		got := make([]string, len(targets))
		for i, id := range targets {
			got[i] = string(id)
		}
		sort.Strings(got)

		want := []string{"canonical", "factory_a", "factory_c"}
		if len(got) != len(want) {
			t.Fatalf("MigrationTargets(ModelTestRun) = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("MigrationTargets(ModelTestRun) = %v, want %v", got, want)
				break
			}
		}
	})
}

func TestResolver_Knows(t *testing.T) {
	r := NewResolver([]StoreID{"factory_a"})

	if !r.Knows(Canonical) {
		t.Error("Knows(canonical) = false, want true")
	}
	if !r.Knows("factory_a") {
		t.Error("Knows(factory_a) = false, want true")
	}
	if r.Knows("factory_b") {
		t.Error("Knows(factory_b) = true, want false")
	}
}
