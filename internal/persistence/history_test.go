package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"walk_tracker/internal/geo"
	"walk_tracker/internal/tracking"
)

func newMockHistory(t *testing.T) (*HistoryStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return NewHistoryStore(db), mock
}

var walkColumns = []string{
	"id", "date", "start_time", "end_time", "steps", "distance_meters", "max_speed_mps",
	"elevation_gain", "elevation_loss", "route", "name", "created_at",
}

func sampleRecord() tracking.WalkRecord {
	start := time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)
	return tracking.WalkRecord{
		ID:             "8d0f6a1e-3c1b-4f0e-9a59-1f1d2b3c4d5e",
		Date:           start.Add(30 * time.Minute),
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		StepCount:      3100,
		DistanceMeters: 2310.5,
		Route: []tracking.Coordinate{
			{Latitude: 31.7767, Longitude: 35.2345, Altitude: 800, Timestamp: start},
			{Latitude: 31.7777, Longitude: 35.2345, Altitude: 805, Timestamp: start.Add(time.Minute)},
		},
		AttachedMedia: []tracking.MediaRef{{ID: "m1", Kind: tracking.MediaGallery, LocalIdentifier: "PH-9"}},
	}
}

func walkRow(t *testing.T, r tracking.WalkRecord) *sqlmock.Rows {
	t.Helper()
	route, err := geo.EncodeWKB(tracking.RoutePoints(r.Route))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqlmock.NewRows(walkColumns).AddRow(
		r.ID, r.Date, r.StartTime, r.EndTime, r.StepCount, r.DistanceMeters, r.MaxSpeedMps,
		r.ElevationGainMeters, r.ElevationLossMeters, route, nil, r.EndTime,
	)
}

func TestSaveFinalWritesWalkAndMedia(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "walks"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "walk_media"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.SaveFinal(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("save final: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveFinalDuplicate(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "walks"`).WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	err := store.SaveFinal(context.Background(), sampleRecord())
	if !errors.Is(err, ErrDuplicateWalk) {
		t.Fatalf("expected duplicate walk, got %v", err)
	}
}

func TestSaveFinalPropagatesDatabaseErrors(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "walks"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SaveFinal(context.Background(), sampleRecord())
	if err == nil || errors.Is(err, ErrDuplicateWalk) {
		t.Fatalf("expected raw database error, got %v", err)
	}
}

func TestGetDecodesRouteAndMedia(t *testing.T) {
	store, mock := newMockHistory(t)
	want := sampleRecord()

	mock.ExpectQuery(`SELECT \* FROM "walks" WHERE id = \$1`).WillReturnRows(walkRow(t, want))
	mock.ExpectQuery(`SELECT \* FROM "walk_media" WHERE "walk_media"."walk_id" = \$1 ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "walk_id", "kind", "local_identifier", "position"}).
			AddRow("m1", want.ID, "gallery", "PH-9", 0))

	got, err := store.Get(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.StepCount != 3100 || len(got.Route) != 2 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Route[1].Altitude != 805 || !got.Route[1].Timestamp.Equal(want.Route[1].Timestamp) {
		t.Fatalf("route not decoded: %+v", got.Route[1])
	}
	if len(got.AttachedMedia) != 1 || got.AttachedMedia[0].Kind != tracking.MediaGallery {
		t.Fatalf("media not loaded: %+v", got.AttachedMedia)
	}
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockHistory(t)
	mock.ExpectQuery(`SELECT \* FROM "walks"`).WillReturnRows(sqlmock.NewRows(walkColumns))

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrWalkNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAppliesFilter(t *testing.T) {
	store, mock := newMockHistory(t)
	rec := sampleRecord()
	rec.AttachedMedia = nil

	mock.ExpectQuery(`SELECT \* FROM "walks" WHERE date >= \$1 AND date < \$2 ORDER BY date desc LIMIT`).
		WillReturnRows(walkRow(t, rec))
	mock.ExpectQuery(`SELECT \* FROM "walk_media"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "walk_id", "kind", "local_identifier", "position"}))

	records, err := store.List(context.Background(), HistoryFilter{
		From:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != rec.ID || len(records[0].AttachedMedia) != 0 {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestLatestEmptyHistory(t *testing.T) {
	store, mock := newMockHistory(t)
	mock.ExpectQuery(`SELECT \* FROM "walks" ORDER BY date desc LIMIT`).WillReturnRows(sqlmock.NewRows(walkColumns))

	latest, err := store.Latest(context.Background())
	if err != nil || latest != nil {
		t.Fatalf("expected no latest walk, got %+v err=%v", latest, err)
	}
}

func TestDeleteRecord(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "walk_media" WHERE walk_id = \$1`).WithArgs("w1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "walks" WHERE id = \$1`).WithArgs("w1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteRecord(context.Background(), "w1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRecordNotFound(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "walk_media"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "walks"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.DeleteRecord(context.Background(), "ghost"); !errors.Is(err, ErrWalkNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRenameTrimsAndClears(t *testing.T) {
	store, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "walks" SET "name"=\$1 WHERE id = \$2`).WithArgs("Morning loop", "w1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	name := "  Morning loop "
	if err := store.Rename(context.Background(), "w1", &name); err != nil {
		t.Fatalf("rename: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "walks" SET "name"=\$1 WHERE id = \$2`).WithArgs(sqlmock.AnyArg(), "w1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	blank := "   "
	if err := store.Rename(context.Background(), "w1", &blank); err != nil {
		t.Fatalf("clear name: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDayTotals(t *testing.T) {
	store, mock := newMockHistory(t)
	day := time.Date(2026, 5, 1, 15, 4, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(steps\), 0\) AS steps`).
		WithArgs(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"steps", "distance_meters", "walks"}).AddRow(6400, 4820.5, 2))

	summary, err := store.DayTotals(context.Background(), day)
	if err != nil {
		t.Fatalf("day totals: %v", err)
	}
	if summary.Steps != 6400 || summary.DistanceMeters != 4820.5 || summary.Walks != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.Day.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected day truncated to midnight, got %v", summary.Day)
	}
}
