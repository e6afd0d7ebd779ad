package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
)

func TestCreateResultPersistsARow(t *testing.T) {
	db := repoTestDB(t)
	repo := NewResultRepo(db, repoTestLogger(t))

	sessionID := uuid.New()
	result := &voe.ValidationResult{ID: uuid.New(), SessionID: sessionID, Kind: string(voe.StageKindStatic), OverallStatus: string(voe.OverallApproved), FidelityScore: 0.97}

	if err := repo.CreateResult(context.Background(), nil, result); err != nil {
		t.Fatalf("CreateResult: %v", err)
	}

	stored, err := repo.ListResults(context.Background(), nil, sessionID)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(stored) != 1 || stored[0].Kind != string(voe.StageKindStatic) {
		t.Fatalf("expected one static result, got %+v", stored)
	}
}

func TestCreateDiscrepanciesSkipsEmptySlice(t *testing.T) {
	db := repoTestDB(t)
	repo := NewResultRepo(db, repoTestLogger(t))

	if err := repo.CreateDiscrepancies(context.Background(), nil, nil); err != nil {
		t.Fatalf("expected a nil slice to be a no-op, got %v", err)
	}
}

func TestCreateDiscrepanciesBatchInsertsAndLists(t *testing.T) {
	db := repoTestDB(t)
	repo := NewResultRepo(db, repoTestLogger(t))
	sessionID := uuid.New()

	rows := []*voe.ValidationDiscrepancy{
		{ID: uuid.New(), SessionID: sessionID, Kind: string(voe.DiscrepancyKindMissing), Severity: string(voe.SeverityCritical), Description: "missing endpoint"},
		{ID: uuid.New(), SessionID: sessionID, Kind: string(voe.DiscrepancyKindSemanticDrift), Severity: string(voe.SeverityWarning), Description: "renamed field"},
	}
	if err := repo.CreateDiscrepancies(context.Background(), nil, rows); err != nil {
		t.Fatalf("CreateDiscrepancies: %v", err)
	}

	stored, err := repo.ListDiscrepancies(context.Background(), nil, sessionID)
	if err != nil {
		t.Fatalf("ListDiscrepancies: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 discrepancies, got %d", len(stored))
	}
}

func TestCreateBehavioralResultsSkipsEmptySlice(t *testing.T) {
	db := repoTestDB(t)
	repo := NewResultRepo(db, repoTestLogger(t))

	if err := repo.CreateBehavioralResults(context.Background(), nil, nil); err != nil {
		t.Fatalf("expected a nil slice to be a no-op, got %v", err)
	}
}

func TestCreateBehavioralResultsPersistsRows(t *testing.T) {
	db := repoTestDB(t)
	repo := NewResultRepo(db, repoTestLogger(t))
	sessionID := uuid.New()

	rows := []*voe.BehavioralTestResult{
		{ID: uuid.New(), SessionID: sessionID, ScenarioName: "checkout-flow", ExecutionStatus: string(voe.BehavioralExecutionMatched)},
	}
	if err := repo.CreateBehavioralResults(context.Background(), nil, rows); err != nil {
		t.Fatalf("CreateBehavioralResults: %v", err)
	}
}
