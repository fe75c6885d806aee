package repository

import (
	"context"
	"fmt"

	"tablecrm/internal/apperror"
)

func (r *pgxRepo) tagIDsByNames(ctx context.Context, cashboxID int64, names []string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM tags WHERE name = ANY($1) AND cashbox_id = $2", names, cashboxID)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ensureTags asserts that every named tag exists for the cashbox, creating
// bare rows for the missing ones.
func (r *pgxRepo) ensureTags(ctx context.Context, cashboxID int64, names []string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (name, cashbox_id)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (name, cashbox_id) DO NOTHING`, names, cashboxID)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
	}
	return nil
}

func (r *pgxRepo) AttachContragentTags(ctx context.Context, cashboxID int64, contragentIDs []int64, names []string) error {
	if len(contragentIDs) == 0 || len(names) == 0 {
		return nil
	}
	if err := r.ensureTags(ctx, cashboxID, names); err != nil {
		return err
	}
	tagIDs, err := r.tagIDsByNames(ctx, cashboxID, names)
	if err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO contragents_tags (contragent_id, tag_id, cashbox_id)
			SELECT unnest($1::bigint[]), $2, $3
			ON CONFLICT (contragent_id, tag_id) DO NOTHING`,
			contragentIDs, tagID, cashboxID); err != nil {
			return fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
		}
	}
	return nil
}

func (r *pgxRepo) DetachContragentTags(ctx context.Context, cashboxID int64, contragentIDs []int64, names []string) error {
	if len(contragentIDs) == 0 || len(names) == 0 {
		return nil
	}
	tagIDs, err := r.tagIDsByNames(ctx, cashboxID, names)
	if err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM contragents_tags
		WHERE tag_id = ANY($1) AND contragent_id = ANY($2)`,
		tagIDs, contragentIDs); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrCannotDeleteFT, err)
	}
	return nil
}

func (r *pgxRepo) AttachDocsSalesTags(ctx context.Context, docIDs []int64, names []string) error {
	if len(docIDs) == 0 || len(names) == 0 {
		return nil
	}
	for _, name := range names {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO docs_sales_tags (docs_sales_id, name)
			SELECT unnest($1::bigint[]), $2
			ON CONFLICT (docs_sales_id, name) DO NOTHING`,
			docIDs, name); err != nil {
			return fmt.Errorf("%w: %w", apperror.ErrCannotInsertT, err)
		}
	}
	return nil
}

func (r *pgxRepo) DetachDocsSalesTags(ctx context.Context, docIDs []int64, names []string) error {
	if len(docIDs) == 0 || len(names) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM docs_sales_tags
		WHERE docs_sales_id = ANY($1) AND name = ANY($2)`,
		docIDs, names); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrCannotDeleteFT, err)
	}
	return nil
}
