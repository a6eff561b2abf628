package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/irdatalab/mojavez-harvester/pkg/checkpoint"
	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// testDB connects to the database named by the environment, skipping the
// test when none is reachable. The schema is applied on every connect; it is
// idempotent.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()

	cfg := Config{
		Host:     envOr("HARVESTER_TEST_DB_HOST", "localhost"),
		Port:     envOr("HARVESTER_TEST_DB_PORT", "5432"),
		User:     envOr("HARVESTER_TEST_DB_USER", "postgres"),
		Password: envOr("HARVESTER_TEST_DB_PASSWORD", "postgres"),
		DBName:   envOr("HARVESTER_TEST_DB_NAME", "harvester_test"),
		SSLMode:  "disable",
	}

	db, err := NewConnection(cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("schema.sql")
	if err != nil {
		t.Fatalf("reading schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func createTestJob(t *testing.T, db *sqlx.DB) *checkpoint.Job {
	t.Helper()
	start := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	job := checkpoint.NewJob("store-test", start, start.AddDate(0, 0, 12), nil, nil)
	if err := NewJobStore(db).Create(context.Background(), job); err != nil {
		t.Fatalf("creating job: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM harvest_jobs WHERE id = $1`, job.ID)
	})
	return job
}

func TestJobStoreRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewJobStore(db)
	job := createTestJob(t, db)

	loaded, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Name != "store-test" || loaded.Status != checkpoint.StatusPending {
		t.Errorf("loaded job = %+v", loaded)
	}

	now := time.Now().UTC()
	loaded.Status = checkpoint.StatusRunning
	loaded.StartedAt = &now
	loaded.TotalRecords = 500
	loaded.FetchedRecords = 42
	loaded.CurrentPage = 2
	if err := store.Update(ctx, loaded); err != nil {
		t.Fatalf("Update: %v", err)
	}

	status, err := store.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != checkpoint.StatusRunning {
		t.Errorf("status = %s, want running", status)
	}

	reloaded, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reloaded.FetchedRecords != 42 || reloaded.CurrentPage != 2 || reloaded.StartedAt == nil {
		t.Errorf("reloaded job = %+v", reloaded)
	}
}

func TestJobStoreNotFound(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db)

	missing := checkpoint.NewJob("missing", time.Now(), time.Now(), nil, nil)
	if _, err := store.Get(context.Background(), missing.ID); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if err := store.Update(context.Background(), missing); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
}

func TestRecordStoreInsertBatchDeduplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewRecordStore(db)
	job := createTestJob(t, db)

	batch := []mojavez.Record{
		{
			RequestNumber: "rec-1",
			ApplicantName: "علی رضایی",
			LicenseTitle:  "پروانه کسب",
			Status:        &mojavez.Status{StatusID: "1", StatusTitle: "فعال", StatusSlug: "active"},
			Raw:           json.RawMessage(`{"request_number":"rec-1"}`),
		},
		{RequestNumber: "rec-2"},
	}

	inserted, err := store.InsertBatch(ctx, job.ID, batch)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}

	// Replay: both already exist.
	inserted, err = store.InsertBatch(ctx, job.ID, batch)
	if err != nil {
		t.Fatalf("InsertBatch replay: %v", err)
	}
	if inserted != 0 {
		t.Errorf("replay inserted = %d, want 0", inserted)
	}

	count, err := store.CountByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CountByJob: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	keys, err := store.RequestNumbers(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestNumbers: %v", err)
	}
	if len(keys) != 2 || keys[0] != "rec-1" || keys[1] != "rec-2" {
		t.Errorf("keys = %v", keys)
	}
}

func TestRecordStoreListWithoutDetail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	records := NewRecordStore(db)
	details := NewDetailStore(db)
	job := createTestJob(t, db)

	if _, err := records.InsertBatch(ctx, job.ID, []mojavez.Record{
		{RequestNumber: "rec-1", Status: &mojavez.Status{StatusTitle: "فعال"}},
		{RequestNumber: "rec-2"},
	}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	if err := details.Save(ctx, job.ID, &mojavez.Detail{
		RequestNumber: "rec-1",
		LicenseTitle:  "پروانه کسب",
		Source:        mojavez.SourceGraphQL,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	pending, err := records.ListWithoutDetail(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListWithoutDetail: %v", err)
	}
	if len(pending) != 1 || pending[0].RequestNumber != "rec-2" {
		t.Errorf("pending = %+v, want only rec-2", pending)
	}
	if pending[0].Status != nil {
		t.Errorf("rec-2 should have no status, got %+v", pending[0].Status)
	}
}

func TestDetailStoreSaveIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	records := NewRecordStore(db)
	details := NewDetailStore(db)
	job := createTestJob(t, db)

	if _, err := records.InsertBatch(ctx, job.ID, []mojavez.Record{{RequestNumber: "rec-1"}}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	detail := &mojavez.Detail{
		RequestNumber: "rec-1",
		LicenseTitle:  "پروانه کسب",
		PostalCode:    "1234567890",
		Source:        mojavez.SourceHTML,
	}
	if err := details.Save(ctx, job.ID, detail); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := details.Save(ctx, job.ID, detail); err != nil {
		t.Fatalf("Save replay: %v", err)
	}

	exists, err := details.ExistsForRecord(ctx, job.ID, "rec-1")
	if err != nil {
		t.Fatalf("ExistsForRecord: %v", err)
	}
	if !exists {
		t.Error("detail should exist")
	}

	exists, err = details.ExistsForRecord(ctx, job.ID, "rec-9")
	if err != nil {
		t.Fatalf("ExistsForRecord: %v", err)
	}
	if exists {
		t.Error("rec-9 should have no detail")
	}
}
