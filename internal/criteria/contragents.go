package criteria

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

// contragentQuery builds the contragent-domain SELECT. The base shape joins
// every contragent to its sales and scopes both to the tenant cashbox.
type contragentQuery struct {
	b       Builder
	where   []string
	having  []string
	groupBy bool
	now     time.Time
}

type contragentHandler func(q *contragentQuery, raw json.RawMessage) error

// Recognized criteria, one handler per field. Iteration order is fixed so
// argument numbering stays deterministic. Unknown keys are ignored.
var contragentHandlers = []struct {
	key string
	fn  contragentHandler
}{
	{"purchases", (*contragentQuery).applyPurchases},
	{"loyality", (*contragentQuery).applyLoyalty},
	{"tags", (*contragentQuery).applyTags},
}

// CompileContragents translates a contragent criteria object into a SELECT
// of deduplicated contragent ids for one cashbox, ordered ascending.
func CompileContragents(cashboxID int64, criteria json.RawMessage, now time.Time) (string, []any, error) {
	q := &contragentQuery{now: now}
	q.where = append(q.where,
		fmt.Sprintf("ds.cashbox = %s", q.b.Bind(cashboxID)),
		"c.is_deleted IS NOT TRUE",
	)

	fields := map[string]json.RawMessage{}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &fields); err != nil {
			return "", nil, fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
		}
	}
	for _, h := range contragentHandlers {
		raw, ok := fields[h.key]
		if !ok {
			continue
		}
		if err := h.fn(q, raw); err != nil {
			return "", nil, err
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT c.id FROM contragents c")
	sb.WriteString(" JOIN docs_sales ds ON ds.contragent = c.id")
	sb.WriteString(" WHERE " + strings.Join(q.where, " AND "))
	if q.groupBy {
		sb.WriteString(" GROUP BY c.id")
		if len(q.having) > 0 {
			sb.WriteString(" HAVING " + strings.Join(q.having, " AND "))
		}
	}
	sb.WriteString(" ORDER BY c.id")
	return sb.String(), q.b.Args(), nil
}

func (q *contragentQuery) applyPurchases(raw json.RawMessage) error {
	var p model.PurchaseCriteria
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: purchases: %v", apperror.ErrCriteriaUnsupported, err)
	}

	if err := q.b.ApplyDateRange("ds.dated", p.DateRange, q.now, &q.where); err != nil {
		return err
	}
	q.b.ApplyRange("ds.sum", p.AmountPerCheck, &q.where)

	if len(p.Categories) > 0 {
		q.where = append(q.where, q.goodsMatch("cat.name", p.Categories))
	}
	if len(p.Nomenclatures) > 0 {
		q.where = append(q.where, q.goodsMatch("n.name", p.Nomenclatures))
	}

	q.groupBy = true
	q.b.ApplyRange("COUNT(ds.id)", p.Count, &q.having)
	q.b.ApplyRange("SUM(ds.sum)", p.TotalAmount, &q.having)

	if rng := p.LastPurchaseDaysAgo; rng != nil {
		// N days ago or more means the newest sale is older than the cutoff.
		if rng.Gte != nil {
			cutoff := q.now.AddDate(0, 0, -int(*rng.Gte))
			q.having = append(q.having, fmt.Sprintf("MAX(ds.dated) <= %s", q.b.Bind(cutoff)))
		}
		if rng.Lte != nil {
			cutoff := q.now.AddDate(0, 0, -int(*rng.Lte))
			q.having = append(q.having, fmt.Sprintf("MAX(ds.dated) >= %s", q.b.Bind(cutoff)))
		}
	}
	return nil
}

// goodsMatch requires at least one good of the current sale to match any of
// the given names. An EXISTS keeps the goods join out of the aggregate rows.
func (q *contragentQuery) goodsMatch(col string, names []string) string {
	likes := make([]string, 0, len(names))
	for _, name := range names {
		likes = append(likes, fmt.Sprintf("%s ILIKE %s", col, q.b.Bind("%"+name+"%")))
	}
	return "EXISTS (SELECT 1 FROM docs_sales_goods dsg" +
		" JOIN nomenclature n ON n.id = dsg.nomenclature" +
		" LEFT JOIN categories cat ON cat.id = n.category" +
		" WHERE dsg.docs_sales_id = ds.id AND (" + strings.Join(likes, " OR ") + "))"
}

func (q *contragentQuery) applyLoyalty(raw json.RawMessage) error {
	var l model.LoyaltyCriteria
	if err := json.Unmarshal(raw, &l); err != nil {
		return fmt.Errorf("%w: loyality: %v", apperror.ErrCriteriaUnsupported, err)
	}
	var sub []string
	q.b.ApplyRange("lc.balance", l.Balance, &sub)
	q.b.ApplyRange(
		"DATE_PART('day', lt.created_at + lc.lifetime * INTERVAL '1 second' - now())",
		l.ExpiresInDays, &sub)
	if len(sub) == 0 {
		return nil
	}
	q.where = append(q.where,
		"c.id IN (SELECT lc.contragent_id FROM loyality_cards lc"+
			" LEFT JOIN loyality_transactions lt ON lt.loyality_card_id = lc.id"+
			" WHERE "+strings.Join(sub, " AND ")+")")
	return nil
}

// applyTags requires every listed tag to be present on the contragent.
func (q *contragentQuery) applyTags(raw json.RawMessage) error {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return fmt.Errorf("%w: tags: %v", apperror.ErrCriteriaUnsupported, err)
	}
	if len(names) == 0 {
		return nil
	}
	q.where = append(q.where, fmt.Sprintf(
		"c.id IN (SELECT ct.contragent_id FROM contragents_tags ct"+
			" JOIN tags t ON t.id = ct.tag_id"+
			" WHERE t.name = ANY(%s)"+
			" GROUP BY ct.contragent_id"+
			" HAVING COUNT(DISTINCT t.name) = %s)",
		q.b.Bind(names), q.b.Bind(len(names))))
	return nil
}
