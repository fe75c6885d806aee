package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

const segmentColumns = `id, cashbox_id, name, selection_field, criteria, actions,
	type_of_update, update_settings, is_archived, status,
	updated_at, previous_update_at, current_version`

func scanSegment(row interface{ Scan(...any) error }) (*model.Segment, error) {
	var (
		s           model.Segment
		criteria    []byte
		actions     []byte
		settings    []byte
		updatedAt   sql.NullTime
		prevUpdated sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.CashboxID, &s.Name, &s.SelectionField, &criteria, &actions,
		&s.TypeOfUpdate, &settings, &s.IsArchived, &s.Status,
		&updatedAt, &prevUpdated, &s.CurrentVersion,
	)
	if err != nil {
		return nil, err
	}
	s.Criteria = criteria
	s.Actions = actions
	if len(settings) > 0 {
		var us model.UpdateSettings
		if err := json.Unmarshal(settings, &us); err != nil {
			return nil, fmt.Errorf("bad update_settings for segment %d: %w", s.ID, err)
		}
		s.UpdateSettings = &us
	}
	if updatedAt.Valid {
		s.UpdatedAt = &updatedAt.Time
	}
	if prevUpdated.Valid {
		s.PreviousUpdateAt = &prevUpdated.Time
	}
	return &s, nil
}

func (r *pgxRepo) GetSegment(ctx context.Context, id int64) (*model.Segment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE id = $1", id)
	s, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrSegmentNotFound
	}
	return s, err
}

func (r *pgxRepo) GetSegmentForCashbox(ctx context.Context, id, cashboxID int64) (*model.Segment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE id = $1 AND cashbox_id = $2", id, cashboxID)
	s, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrSegmentNotFound
	}
	return s, err
}

func (r *pgxRepo) ListSegments(ctx context.Context, cashboxID int64) ([]model.Segment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE cashbox_id = $1 ORDER BY id", cashboxID)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	var segments []model.Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		segments = append(segments, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDuringRowsIteration, err)
	}
	return segments, nil
}

func (r *pgxRepo) CreateSegment(ctx context.Context, cashboxID int64, data *model.SegmentCreateDTO) (int64, error) {
	settings, err := marshalSettings(data.UpdateSettings)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO segments (cashbox_id, name, selection_field, criteria, actions,
			type_of_update, update_settings, is_archived, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		cashboxID, data.Name, data.SelectionField, normalizeJSON(data.Criteria),
		nullableJSON(data.Actions), data.TypeOfUpdate, settings, data.IsArchived,
		model.StatusIdle,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
	}
	return id, nil
}

func (r *pgxRepo) UpdateSegment(ctx context.Context, id, cashboxID int64, data *model.SegmentCreateDTO) error {
	settings, err := marshalSettings(data.UpdateSettings)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments
		SET name = $3, criteria = $4, actions = $5, type_of_update = $6,
			update_settings = $7, is_archived = $8
		WHERE id = $1 AND cashbox_id = $2`,
		id, cashboxID, data.Name, normalizeJSON(data.Criteria),
		nullableJSON(data.Actions), data.TypeOfUpdate, settings, data.IsArchived,
	)
	if err != nil {
		return fmt.Errorf("db update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrSegmentNotFound
	}
	return nil
}

func (r *pgxRepo) ListDueSegments(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM segments
		WHERE type_of_update = 'cron'
		  AND is_archived IS NOT TRUE
		  AND (update_settings->>'interval_minutes')::int IS NOT NULL
		  AND updated_at <= now() - make_interval(mins => (update_settings->>'interval_minutes')::int)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgxRepo) SetStatus(ctx context.Context, id int64, status model.SegmentStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE segments SET status = $2 WHERE id = $1", id, status)
	return err
}

func (r *pgxRepo) MarkUpdated(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE segments
		SET previous_update_at = updated_at, updated_at = now(), status = $2
		WHERE id = $1`, id, model.StatusIdle)
	return err
}

// Advisory lock keyed by ("segment", id); at most one evaluation per
// segment cluster-wide. The lock is session-scoped, so acquire and release
// must run on one pinned connection: issued through the pool they would hit
// different sessions, leaking the lock on the acquiring one.
func (r *pgxRepo) TryLockSegment(ctx context.Context, id int64) (SegmentLock, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for segment lock: %w", err)
	}
	var locked bool
	if err := conn.QueryRowContext(ctx,
		"SELECT pg_try_advisory_lock(hashtext('segment'), $1::int)", id).Scan(&locked); err != nil {
		conn.Close()
		return nil, err
	}
	if !locked {
		conn.Close()
		return nil, nil
	}
	return &connLock{conn: conn, id: id}, nil
}

// connLock owns the session the lock was taken on.
type connLock struct {
	conn *sql.Conn
	id   int64
}

func (l *connLock) Release(ctx context.Context) error {
	// Closing the pinned session drops the lock even when the unlock call
	// itself fails.
	defer l.conn.Close()
	var released bool
	if err := l.conn.QueryRowContext(ctx,
		"SELECT pg_advisory_unlock(hashtext('segment'), $1::int)", l.id).Scan(&released); err != nil {
		return err
	}
	if !released {
		return fmt.Errorf("advisory lock for segment %d was not held by this session", l.id)
	}
	return nil
}

func (r *pgxRepo) CashboxByToken(ctx context.Context, token string) (int64, error) {
	var cashboxID int64
	err := r.db.QueryRowContext(ctx,
		"SELECT cashbox_id FROM users_cboxes_relation WHERE token = $1", token).Scan(&cashboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.ErrTokenNotFound
	}
	return cashboxID, err
}

func (r *pgxRepo) TokenBySegment(ctx context.Context, segmentID int64) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `
		SELECT ucr.token FROM users_cboxes_relation ucr
		JOIN segments s ON s.cashbox_id = ucr.cashbox_id
		WHERE s.id = $1
		LIMIT 1`, segmentID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func marshalSettings(s *model.UpdateSettings) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal update_settings: %w", err)
	}
	return raw, nil
}

func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDuringRowsIteration, err)
	}
	return ids, nil
}
