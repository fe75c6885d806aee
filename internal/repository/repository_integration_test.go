package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"os"
	"reflect"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
	"tablecrm/internal/repository"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr != "" {
		db, err := sql.Open("pgx", connStr)
		if err != nil {
			log.Fatalf("failed to open test database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to test database: %v", err)
		}
		schema, err := os.ReadFile("migrations/schema.sql")
		if err != nil {
			log.Fatalf("failed to read schema: %v", err)
		}
		if _, err := db.Exec(string(schema)); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		testDB = db
	}
	exitCode := m.Run()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(exitCode)
}

func setupTest(t *testing.T) repository.Repo {
	if testDB == nil {
		t.Skip("DATABASE_URL is not set, skipping integration test")
	}
	ctx := context.Background()
	for _, table := range []string{
		"segment_version_objects", "segment_versions", "segment_memberships",
		"segments", "users_cboxes_relation", "contragents_tags", "tags",
		"contragents",
	} {
		if _, err := testDB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}
	return repository.NewPgxRepo(testDB)
}

func TestSegmentLifecycle(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	id, err := repo.CreateSegment(ctx, 42, &model.SegmentCreateDTO{
		Name:           "vip buyers",
		SelectionField: model.SelectionContragents,
		Criteria:       json.RawMessage(`{"purchases": {"total_amount": {"gte": 1000}}}`),
		TypeOfUpdate:   model.UpdateCron,
		UpdateSettings: &model.UpdateSettings{IntervalMinutes: 30},
	})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}

	seg, err := repo.GetSegment(ctx, id)
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if seg.Name != "vip buyers" || seg.Status != model.StatusIdle {
		t.Errorf("created segment = %+v", seg)
	}
	if seg.UpdateSettings == nil || seg.UpdateSettings.IntervalMinutes != 30 {
		t.Errorf("update_settings = %+v, want 30 minutes", seg.UpdateSettings)
	}
	if seg.CurrentVersion != 0 {
		t.Errorf("current_version = %d, want 0", seg.CurrentVersion)
	}

	if _, err := repo.GetSegmentForCashbox(ctx, id, 777); !errors.Is(err, apperror.ErrSegmentNotFound) {
		t.Errorf("foreign cashbox read error = %v, want ErrSegmentNotFound", err)
	}

	if err := repo.UpdateSegment(ctx, id, 42, &model.SegmentCreateDTO{
		Name:           "vip buyers v2",
		SelectionField: model.SelectionContragents,
		TypeOfUpdate:   model.UpdateRequest,
		IsArchived:     true,
	}); err != nil {
		t.Fatalf("UpdateSegment failed: %v", err)
	}
	seg, err = repo.GetSegment(ctx, id)
	if err != nil {
		t.Fatalf("GetSegment after update failed: %v", err)
	}
	if seg.Name != "vip buyers v2" || !seg.IsArchived {
		t.Errorf("updated segment = %+v", seg)
	}

	if err := repo.UpdateSegment(ctx, id+1000, 42, &model.SegmentCreateDTO{
		Name:           "ghost",
		SelectionField: model.SelectionContragents,
		TypeOfUpdate:   model.UpdateRequest,
	}); !errors.Is(err, apperror.ErrSegmentNotFound) {
		t.Errorf("update of missing segment error = %v, want ErrSegmentNotFound", err)
	}
}

func TestApplyDiffVersioning(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	id, err := repo.CreateSegment(ctx, 42, &model.SegmentCreateDTO{
		Name:           "diffed",
		SelectionField: model.SelectionContragents,
		TypeOfUpdate:   model.UpdateRequest,
	})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}

	version, err := repo.ApplyDiff(ctx, id, model.SelectionContragents, 0, []int64{10, 11}, nil)
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	current, err := repo.CurrentIDs(ctx, id)
	if err != nil {
		t.Fatalf("CurrentIDs failed: %v", err)
	}
	if !reflect.DeepEqual(current, []int64{10, 11}) {
		t.Errorf("members = %v, want [10 11]", current)
	}

	version, err = repo.ApplyDiff(ctx, id, model.SelectionContragents, 1, []int64{12}, []int64{10})
	if err != nil {
		t.Fatalf("second ApplyDiff failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	current, _ = repo.CurrentIDs(ctx, id)
	if !reflect.DeepEqual(current, []int64{11, 12}) {
		t.Errorf("members = %v, want [11 12]", current)
	}

	added, err := repo.VersionObjects(ctx, id, 2, model.ChangeAdded)
	if err != nil {
		t.Fatalf("VersionObjects failed: %v", err)
	}
	if !reflect.DeepEqual(added, []int64{12}) {
		t.Errorf("version 2 added = %v, want [12]", added)
	}
	removed, _ := repo.VersionObjects(ctx, id, 2, model.ChangeRemoved)
	if !reflect.DeepEqual(removed, []int64{10}) {
		t.Errorf("version 2 removed = %v, want [10]", removed)
	}

	// An empty diff writes nothing and keeps the version.
	version, err = repo.ApplyDiff(ctx, id, model.SelectionContragents, 2, nil, nil)
	if err != nil {
		t.Fatalf("empty ApplyDiff failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version after empty diff = %d, want 2", version)
	}

	// A stale expected version loses the optimistic check.
	_, err = repo.ApplyDiff(ctx, id, model.SelectionContragents, 1, []int64{13}, nil)
	if !errors.Is(err, apperror.ErrConcurrentModification) {
		t.Errorf("stale ApplyDiff error = %v, want ErrConcurrentModification", err)
	}
	seg, _ := repo.GetSegment(ctx, id)
	if seg.CurrentVersion != 2 {
		t.Errorf("current_version = %d, want 2 after rejected diff", seg.CurrentVersion)
	}
}

func TestSegmentLockPinsSession(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	lock, err := repo.TryLockSegment(ctx, 12345)
	if err != nil {
		t.Fatalf("TryLockSegment failed: %v", err)
	}
	if lock == nil {
		t.Fatal("first acquisition returned no lock")
	}

	// The pool serves the second attempt a different session, so it must
	// observe the lock as held.
	second, err := repo.TryLockSegment(ctx, 12345)
	if err != nil {
		t.Fatalf("second TryLockSegment failed: %v", err)
	}
	if second != nil {
		second.Release(ctx)
		t.Fatal("second acquisition succeeded while the lock was held")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Release must actually free the lock, not just drop the handle.
	third, err := repo.TryLockSegment(ctx, 12345)
	if err != nil {
		t.Fatalf("TryLockSegment after release failed: %v", err)
	}
	if third == nil {
		t.Fatal("lock was still held after release")
	}
	if err := third.Release(ctx); err != nil {
		t.Errorf("final Release failed: %v", err)
	}
}

func TestAttachContragentTagsIdempotent(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	var contragentID int64
	if err := testDB.QueryRowContext(ctx, `
		INSERT INTO contragents (cashbox, name) VALUES (42, 'Иван')
		RETURNING id`).Scan(&contragentID); err != nil {
		t.Fatalf("failed to seed contragent: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.AttachContragentTags(ctx, 42, []int64{contragentID}, []string{"vip"}); err != nil {
			t.Fatalf("AttachContragentTags #%d failed: %v", i+1, err)
		}
	}

	var links int
	if err := testDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contragents_tags WHERE contragent_id = $1",
		contragentID).Scan(&links); err != nil {
		t.Fatalf("failed to count links: %v", err)
	}
	if links != 1 {
		t.Errorf("link rows = %d, want 1 after repeated attach", links)
	}

	var tagRows int
	if err := testDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tags WHERE name = 'vip' AND cashbox_id = 42").Scan(&tagRows); err != nil {
		t.Fatalf("failed to count tags: %v", err)
	}
	if tagRows != 1 {
		t.Errorf("tag rows = %d, want 1 after repeated attach", tagRows)
	}
}

func TestListDueSegments(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	createCron := func(name string) int64 {
		id, err := repo.CreateSegment(ctx, 42, &model.SegmentCreateDTO{
			Name:           name,
			SelectionField: model.SelectionContragents,
			TypeOfUpdate:   model.UpdateCron,
			UpdateSettings: &model.UpdateSettings{IntervalMinutes: 15},
		})
		if err != nil {
			t.Fatalf("CreateSegment %s failed: %v", name, err)
		}
		return id
	}
	age := func(id int64, minutes int) {
		if _, err := testDB.ExecContext(ctx,
			"UPDATE segments SET updated_at = now() - make_interval(mins => $2) WHERE id = $1",
			id, minutes); err != nil {
			t.Fatalf("failed to age segment %d: %v", id, err)
		}
	}

	dueID := createCron("stale enough")
	age(dueID, 16)

	freshID := createCron("inside the window")
	age(freshID, 14)

	archivedID := createCron("archived")
	age(archivedID, 16)
	if _, err := testDB.ExecContext(ctx,
		"UPDATE segments SET is_archived = TRUE WHERE id = $1", archivedID); err != nil {
		t.Fatalf("failed to archive segment: %v", err)
	}

	manualID, err := repo.CreateSegment(ctx, 42, &model.SegmentCreateDTO{
		Name:           "manual only",
		SelectionField: model.SelectionContragents,
		TypeOfUpdate:   model.UpdateRequest,
	})
	if err != nil {
		t.Fatalf("CreateSegment manual failed: %v", err)
	}
	age(manualID, 16)

	due, err := repo.ListDueSegments(ctx)
	if err != nil {
		t.Fatalf("ListDueSegments failed: %v", err)
	}
	if !reflect.DeepEqual(due, []int64{dueID}) {
		t.Errorf("due segments = %v, want only %d", due, dueID)
	}
}

func TestCashboxByToken(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	if _, err := testDB.ExecContext(ctx, `
		INSERT INTO users_cboxes_relation (cashbox_id, token, tags)
		VALUES (42, 'tok-42', '{managers}')`); err != nil {
		t.Fatalf("failed to seed relation: %v", err)
	}

	cashboxID, err := repo.CashboxByToken(ctx, "tok-42")
	if err != nil {
		t.Fatalf("CashboxByToken failed: %v", err)
	}
	if cashboxID != 42 {
		t.Errorf("cashbox = %d, want 42", cashboxID)
	}

	if _, err := repo.CashboxByToken(ctx, "missing"); !errors.Is(err, apperror.ErrTokenNotFound) {
		t.Errorf("missing token error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenBySegment(t *testing.T) {
	repo := setupTest(t)
	ctx := context.Background()

	id, err := repo.CreateSegment(ctx, 42, &model.SegmentCreateDTO{
		Name:           "owned",
		SelectionField: model.SelectionContragents,
		TypeOfUpdate:   model.UpdateRequest,
	})
	if err != nil {
		t.Fatalf("CreateSegment failed: %v", err)
	}

	token, err := repo.TokenBySegment(ctx, id)
	if err != nil {
		t.Fatalf("TokenBySegment failed: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty without a relation", token)
	}

	if _, err := testDB.ExecContext(ctx, `
		INSERT INTO users_cboxes_relation (cashbox_id, token)
		VALUES (42, 'tok-owner')`); err != nil {
		t.Fatalf("failed to seed relation: %v", err)
	}
	token, err = repo.TokenBySegment(ctx, id)
	if err != nil {
		t.Fatalf("TokenBySegment failed: %v", err)
	}
	if token != "tok-owner" {
		t.Errorf("token = %q, want tok-owner", token)
	}
}
