package db

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestRun creates a successful run finished at the given time.
func newTestRun(id, archive string, finished time.Time) *Run {
	return &Run{
		ID:          id,
		ArchivePath: archive,
		Variant:     "STD2_0",
		PackageID:   "pkg001",
		Mode:        "graph",
		Status:      StatusOK,
		Documents:   2,
		Assets:      5,
		OutputDir:   "/out/" + id,
		StartedAt:   finished.Add(-time.Second).Unix(),
		FinishedAt:  finished.Unix(),
	}
}

func TestInsertRunAndGet(t *testing.T) {
	db := openTestDB(t)

	r := newTestRun("01RUN", "/archives/a.lpk", time.Now())
	r.ArchiveDigest = "abc123"
	translations := []Translation{
		{Entry: "e1.bin3", Output: "model0.json", Kind: "document"},
		{Entry: "e2.bin3", Output: "Moc_0.moc3", Kind: "asset"},
		// Same entry again, from a second character pass.
		{Entry: "e1.bin3", Output: "model0.json", Kind: "document"},
	}

	if err := InsertRun(db, r, translations); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := GetRun(db, "01RUN")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ArchivePath != r.ArchivePath {
		t.Errorf("ArchivePath = %q, want %q", got.ArchivePath, r.ArchivePath)
	}
	if got.ArchiveDigest != "abc123" {
		t.Errorf("ArchiveDigest = %q, want abc123", got.ArchiveDigest)
	}
	if got.Documents != 2 || got.Assets != 5 {
		t.Errorf("counts = %d/%d, want 2/5", got.Documents, got.Assets)
	}
	if got.FailedStage != "" || got.Error != "" {
		t.Errorf("unexpected failure fields: %q %q", got.FailedStage, got.Error)
	}

	trs, err := GetTranslations(db, "01RUN")
	if err != nil {
		t.Fatalf("GetTranslations failed: %v", err)
	}
	if len(trs) != 3 {
		t.Fatalf("translations = %d, want 3", len(trs))
	}
	if trs[1].Output != "Moc_0.moc3" {
		t.Errorf("translations[1].Output = %q, want Moc_0.moc3", trs[1].Output)
	}
}

func TestInsertRun_Duplicate(t *testing.T) {
	db := openTestDB(t)

	r := newTestRun("01DUP", "/a.lpk", time.Now())
	if err := InsertRun(db, r, nil); err != nil {
		t.Fatalf("first InsertRun failed: %v", err)
	}
	err := InsertRun(db, r, nil)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("second InsertRun error = %v, want INVALID_REQUEST", err)
	}
}

func TestInsertRun_FailedRun(t *testing.T) {
	db := openTestDB(t)

	r := &Run{
		ID:          "01FAIL",
		ArchivePath: "/a.lpk",
		Status:      StatusFailed,
		FailedStage: "manifest",
		Error:       "FATAL_CONFIG: manifest: failed to retrieve lpk config",
		StartedAt:   time.Now().Unix(),
		FinishedAt:  time.Now().Unix(),
	}
	if err := InsertRun(db, r, nil); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := GetRun(db, "01FAIL")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.FailedStage != "manifest" {
		t.Errorf("FailedStage = %q, want manifest", got.FailedStage)
	}
	if got.Variant != "" {
		t.Errorf("Variant = %q, want empty", got.Variant)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetRun(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetRun error = %v, want NOT_FOUND", err)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		r := newTestRun(fmt.Sprintf("01R%d", i), fmt.Sprintf("/archives/%d.lpk", i), base.Add(time.Duration(i)*time.Minute))
		if i == 3 {
			r.Status = StatusFailed
		}
		if err := InsertRun(db, r, nil); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	runs, total, err := ListRuns(db, RunFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	// Newest first
	if runs[0].ID != "01R4" || runs[1].ID != "01R3" {
		t.Errorf("order = %s, %s; want 01R4, 01R3", runs[0].ID, runs[1].ID)
	}

	runs, _, err = ListRuns(db, RunFilter{}, 10, 4)
	if err != nil {
		t.Fatalf("ListRuns offset failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "01R0" {
		t.Errorf("offset page = %v, want [01R0]", runs)
	}

	runs, total, err = ListRuns(db, RunFilter{Status: StatusFailed}, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns status failed: %v", err)
	}
	if total != 1 || runs[0].ID != "01R3" {
		t.Errorf("failed runs = %v (total %d), want [01R3]", runs, total)
	}

	runs, total, err = ListRuns(db, RunFilter{Archive: "2.lpk"}, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns archive failed: %v", err)
	}
	if total != 1 || runs[0].ID != "01R2" {
		t.Errorf("archive runs = %v (total %d), want [01R2]", runs, total)
	}
}

func TestPurgeRuns(t *testing.T) {
	db := openTestDB(t)

	old := newTestRun("01OLD", "/a.lpk", time.Now().Add(-10*24*time.Hour))
	oldFailed := newTestRun("01OLDFAIL", "/b.lpk", time.Now().Add(-10*24*time.Hour))
	oldFailed.Status = StatusFailed
	recent := newTestRun("01NEW", "/a.lpk", time.Now())

	for _, r := range []*Run{old, oldFailed, recent} {
		if err := InsertRun(db, r, []Translation{{Entry: "e", Output: "o", Kind: "asset"}}); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	days := 7
	failed := StatusFailed
	n, err := PurgeRuns(db, &days, &failed)
	if err != nil {
		t.Fatalf("PurgeRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1 (old failed run only)", n)
	}

	n, err = PurgeRuns(db, &days, nil)
	if err != nil {
		t.Fatalf("PurgeRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	if _, err := GetRun(db, "01OLD"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("01OLD should be gone, got %v", err)
	}
	trs, err := GetTranslations(db, "01OLD")
	if err != nil {
		t.Fatalf("GetTranslations failed: %v", err)
	}
	if len(trs) != 0 {
		t.Errorf("translations of purged run = %d, want 0", len(trs))
	}
	if _, err := GetRun(db, "01NEW"); err != nil {
		t.Errorf("recent run should remain: %v", err)
	}

	n, err = PurgeRuns(db, nil, nil)
	if err != nil {
		t.Fatalf("PurgeRuns all failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}
