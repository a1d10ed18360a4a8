package technician

import (
	"context"
	"testing"
)

func TestResolveCreatesCanonicalIdentity(t *testing.T) {
	ctx := context.Background()
	sourceRepo := NewSQLiteRepository(setupTestDB(t))
	canonicalRepo := NewSQLiteRepository(setupTestDB(t))
	rec := NewReconciler(canonicalRepo)

	src := &Technician{
		Username:  "dortiz",
		Email:     "dortiz@example.com",
		FirstName: "Dana",
		LastName:  "Ortiz",
		IsActive:  true,
	}
	if err := sourceRepo.Create(ctx, src); err != nil {
		t.Fatalf("seed source technician: %v", err)
	}

	got, err := rec.Resolve(ctx, sourceRepo, src.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected canonical technician, got nil")
	}
	if got.Username != "dortiz" {
		t.Errorf("Username = %q, want %q", got.Username, "dortiz")
	}
	if got.ID == src.ID {
		t.Error("canonical id should not reuse the source-local id")
	}
	if got.Email != "dortiz@example.com" {
		t.Errorf("Email = %q, want copied source profile", got.Email)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sourceRepo := NewSQLiteRepository(setupTestDB(t))
	canonicalRepo := NewSQLiteRepository(setupTestDB(t))
	rec := NewReconciler(canonicalRepo)

	src := &Technician{Username: "efranklin", IsActive: true}
	if err := sourceRepo.Create(ctx, src); err != nil {
		t.Fatalf("seed source technician: %v", err)
	}

	first, err := rec.Resolve(ctx, sourceRepo, src.ID)
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := rec.Resolve(ctx, sourceRepo, src.ID)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated Resolve returned different ids: %s vs %s", first.ID, second.ID)
	}

	all, err := canonicalRepo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 canonical technician, got %d", len(all))
	}
}

func TestResolveMatchesExistingByUsername(t *testing.T) {
	ctx := context.Background()
	sourceRepo := NewSQLiteRepository(setupTestDB(t))
	canonicalRepo := NewSQLiteRepository(setupTestDB(t))
	rec := NewReconciler(canonicalRepo)

	existing := &Technician{Username: "gchen", Email: "canonical@example.com"}
	if err := canonicalRepo.Create(ctx, existing); err != nil {
		t.Fatalf("seed canonical technician: %v", err)
	}
	src := &Technician{Username: "gchen", Email: "source@example.com"}
	if err := sourceRepo.Create(ctx, src); err != nil {
		t.Fatalf("seed source technician: %v", err)
	}

	got, err := rec.Resolve(ctx, sourceRepo, src.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("expected existing canonical id %s, got %s", existing.ID, got.ID)
	}
	if got.Email != "canonical@example.com" {
		t.Errorf("existing canonical profile should win, got email %q", got.Email)
	}
}

func TestResolveUnattributed(t *testing.T) {
	ctx := context.Background()
	sourceRepo := NewSQLiteRepository(setupTestDB(t))
	rec := NewReconciler(NewSQLiteRepository(setupTestDB(t)))

	got, err := rec.Resolve(ctx, sourceRepo, "")
	if err != nil || got != nil {
		t.Errorf("empty source id: got (%v, %v), want (nil, nil)", got, err)
	}

	got, err = rec.Resolve(ctx, sourceRepo, "tech-ghost")
	if err != nil || got != nil {
		t.Errorf("missing source id: got (%v, %v), want (nil, nil)", got, err)
	}
}
