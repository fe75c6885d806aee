package criteria

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

type docsSalesQuery struct {
	b     Builder
	where []string
	now   time.Time
}

type docsSalesHandler func(q *docsSalesQuery, raw json.RawMessage) error

var docsSalesHandlers = []struct {
	key string
	fn  docsSalesHandler
}{
	{"tag", (*docsSalesQuery).applyTag},
	{"delivery_required", (*docsSalesQuery).applyDeliveryRequired},
	{"created_at", (*docsSalesQuery).applyCreatedAt},
	{"picker", (*docsSalesQuery).applyPicker},
	{"courier", (*docsSalesQuery).applyCourier},
}

// CompileDocsSales translates a docs-sales criteria object into a SELECT of
// deduplicated sale ids for one cashbox, ordered ascending.
func CompileDocsSales(cashboxID int64, criteria json.RawMessage, now time.Time) (string, []any, error) {
	q := &docsSalesQuery{now: now}
	q.where = append(q.where,
		fmt.Sprintf("ds.cashbox = %s", q.b.Bind(cashboxID)),
		"ds.is_deleted IS NOT TRUE",
	)

	fields := map[string]json.RawMessage{}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &fields); err != nil {
			return "", nil, fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
		}
	}
	for _, h := range docsSalesHandlers {
		raw, ok := fields[h.key]
		if !ok {
			continue
		}
		if err := h.fn(q, raw); err != nil {
			return "", nil, err
		}
	}

	query := "SELECT DISTINCT ds.id FROM docs_sales ds WHERE " +
		strings.Join(q.where, " AND ") + " ORDER BY ds.id"
	return query, q.b.Args(), nil
}

func (q *docsSalesQuery) applyTag(raw json.RawMessage) error {
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return fmt.Errorf("%w: tag: %v", apperror.ErrCriteriaUnsupported, err)
	}
	if tag == "" {
		return nil
	}
	q.where = append(q.where, fmt.Sprintf(
		"EXISTS (SELECT 1 FROM docs_sales_tags dst"+
			" WHERE dst.docs_sales_id = ds.id AND dst.name = %s)", q.b.Bind(tag)))
	return nil
}

func (q *docsSalesQuery) applyDeliveryRequired(raw json.RawMessage) error {
	var required bool
	if err := json.Unmarshal(raw, &required); err != nil {
		return fmt.Errorf("%w: delivery_required: %v", apperror.ErrCriteriaUnsupported, err)
	}
	sub := "(SELECT 1 FROM docs_sales_delivery_info di WHERE di.docs_sales_id = ds.id)"
	if required {
		q.where = append(q.where, "EXISTS "+sub)
	} else {
		q.where = append(q.where, "NOT EXISTS "+sub)
	}
	return nil
}

func (q *docsSalesQuery) applyCreatedAt(raw json.RawMessage) error {
	var r model.DateRange
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("%w: created_at: %v", apperror.ErrCriteriaUnsupported, err)
	}
	return q.b.ApplyDateRange("ds.created_at", &r, q.now, &q.where)
}

func (q *docsSalesQuery) applyPicker(raw json.RawMessage) error {
	var p model.PickerCourierCriteria
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: picker: %v", apperror.ErrCriteriaUnsupported, err)
	}
	if p.Assigned != nil {
		isNone := !*p.Assigned
		q.b.ApplyRange("ds.assigned_picker", &model.Range{IsNone: &isNone}, &q.where)
	}
	if err := q.b.ApplyDateRange("ds.picker_started_at", p.Start, q.now, &q.where); err != nil {
		return err
	}
	return q.b.ApplyDateRange("ds.picker_finished_at", p.Finish, q.now, &q.where)
}

func (q *docsSalesQuery) applyCourier(raw json.RawMessage) error {
	var c model.PickerCourierCriteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("%w: courier: %v", apperror.ErrCriteriaUnsupported, err)
	}
	if c.Assigned != nil {
		isNone := !*c.Assigned
		q.b.ApplyRange("ds.assigned_courier", &model.Range{IsNone: &isNone}, &q.where)
		if !*c.Assigned {
			// Unassigned orders only matter once picking is done.
			q.where = append(q.where, fmt.Sprintf("ds.order_status = %s", q.b.Bind("collected")))
		}
	}
	if err := q.b.ApplyDateRange("ds.courier_picked_at", c.Start, q.now, &q.where); err != nil {
		return err
	}
	return q.b.ApplyDateRange("ds.courier_delivered_at", c.Finish, q.now, &q.where)
}
