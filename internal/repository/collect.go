package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

func (r *pgxRepo) SelectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("criteria select failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgxRepo) ContragentsByIDs(ctx context.Context, ids []int64) ([]model.ContragentDTO, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, phone FROM contragents WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	var result []model.ContragentDTO
	for rows.Next() {
		var (
			dto   model.ContragentDTO
			name  sql.NullString
			phone sql.NullString
		)
		if err := rows.Scan(&dto.ID, &name, &phone); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if name.Valid {
			dto.Name = &name.String
		}
		if phone.Valid {
			dto.Phone = &phone.String
		}
		result = append(result, dto)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDuringRowsIteration, err)
	}
	return result, nil
}

func (r *pgxRepo) UserChatIDsByTag(ctx context.Context, cashboxID int64, userTag string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.chat_id FROM users u
		JOIN users_cboxes_relation ucr ON ucr."user" = u.id
		WHERE ucr.cashbox_id = $1 AND $2 = ANY(ucr.tags) AND u.chat_id IS NOT NULL`,
		cashboxID, userTag)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgxRepo) PickerChatIDs(ctx context.Context, cashboxID, orderID int64) ([]int64, error) {
	return r.assigneeChatIDs(ctx, cashboxID, orderID, "assigned_picker")
}

func (r *pgxRepo) CourierChatIDs(ctx context.Context, cashboxID, orderID int64) ([]int64, error) {
	return r.assigneeChatIDs(ctx, cashboxID, orderID, "assigned_courier")
}

func (r *pgxRepo) assigneeChatIDs(ctx context.Context, cashboxID, orderID int64, column string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.chat_id FROM users u
		JOIN users_cboxes_relation ucr ON ucr."user" = u.id
		JOIN docs_sales ds ON ds.`+column+` = ucr.id
		WHERE ds.id = $1 AND ds.cashbox = $2 AND u.chat_id IS NOT NULL`,
		orderID, cashboxID)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgxRepo) DeliveryInfo(ctx context.Context, orderID int64) (*model.DeliveryInfo, error) {
	var (
		info      model.DeliveryInfo
		address   sql.NullString
		note      sql.NullString
		date      sql.NullTime
		recipient sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT address, note, delivery_date, recipient
		FROM docs_sales_delivery_info WHERE docs_sales_id = $1`, orderID,
	).Scan(&address, &note, &date, &recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	info.Address = address.String
	info.Note = note.String
	info.Recipient = recipient.String
	if date.Valid {
		info.Date = &date.Time
	}
	return &info, nil
}

func (r *pgxRepo) OrderLinks(ctx context.Context, orderID int64) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT channel, url FROM docs_sales_links WHERE docs_sales_id = $1", orderID)
	if err != nil {
		return nil, fmt.Errorf("db query failed: %w", err)
	}
	defer rows.Close()
	links := make(map[string]string)
	for rows.Next() {
		var channel, url string
		if err := rows.Scan(&channel, &url); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		links[channel] = url
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrDuringRowsIteration, err)
	}
	return links, nil
}
