package repository

import (
	"context"
	"fmt"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

func (r *pgxRepo) CurrentIDs(ctx context.Context, segmentID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_id FROM segment_memberships
		WHERE segment_id = $1
		ORDER BY object_id`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgxRepo) ApplyDiff(ctx context.Context, segmentID int64, objType model.SelectionField, expectedVersion int64, added, removed []int64) (int64, error) {
	if len(added) == 0 && len(removed) == 0 {
		return expectedVersion, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrFailedBTransaction, err)
	}
	defer tx.Rollback()

	// Optimistic bump: a concurrent writer that advanced the version since
	// our read makes this a zero-row update.
	res, err := tx.ExecContext(ctx, `
		UPDATE segments SET current_version = current_version + 1
		WHERE id = $1 AND current_version = $2`, segmentID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("version bump failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, apperror.ErrConcurrentModification
	}
	version := expectedVersion + 1

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO segment_versions (segment_id, version) VALUES ($1, $2)",
		segmentID, version); err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
	}

	stmtObject, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_version_objects (segment_id, version, object_type, object_id, change_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare version object statement: %w", err)
	}
	defer stmtObject.Close()

	stmtAdd, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_memberships (segment_id, object_type, object_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare membership statement: %w", err)
	}
	defer stmtAdd.Close()

	for _, id := range added {
		if _, err := stmtObject.ExecContext(ctx, segmentID, version, objType, id, model.ChangeAdded); err != nil {
			return 0, fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
		}
		if _, err := stmtAdd.ExecContext(ctx, segmentID, objType, id); err != nil {
			return 0, fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
		}
	}
	for _, id := range removed {
		if _, err := stmtObject.ExecContext(ctx, segmentID, version, objType, id, model.ChangeRemoved); err != nil {
			return 0, fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
		}
	}
	if len(removed) > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM segment_memberships
			WHERE segment_id = $1 AND object_type = $2 AND object_id = ANY($3)`,
			segmentID, objType, removed); err != nil {
			return 0, fmt.Errorf("%w: %w", apperror.ErrCannotDeleteFT, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrFailedCTransaction, err)
	}
	return version, nil
}

func (r *pgxRepo) VersionObjects(ctx context.Context, segmentID, version int64, change model.ChangeType) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_id FROM segment_version_objects
		WHERE segment_id = $1 AND version = $2 AND change_type = $3
		ORDER BY object_id`, segmentID, version, change)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}
