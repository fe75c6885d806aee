package criteria

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tablecrm/internal/apperror"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

const contragentBase = "SELECT DISTINCT c.id FROM contragents c" +
	" JOIN docs_sales ds ON ds.contragent = c.id" +
	" WHERE ds.cashbox = $1 AND c.is_deleted IS NOT TRUE"

func TestCompileContragentsEmptyCriteria(t *testing.T) {
	query, args, err := CompileContragents(42, nil, testNow)
	require.NoError(t, err)
	require.Equal(t, contragentBase+" ORDER BY c.id", query)
	require.Equal(t, []any{int64(42)}, args)
}

func TestCompileContragentsIgnoresUnknownKeys(t *testing.T) {
	query, args, err := CompileContragents(42, json.RawMessage(`{"favorite_color": "red"}`), testNow)
	require.NoError(t, err)
	require.Equal(t, contragentBase+" ORDER BY c.id", query)
	require.Equal(t, []any{int64(42)}, args)
}

func TestCompileContragentsPurchaseAggregates(t *testing.T) {
	criteria := json.RawMessage(`{
		"purchases": {
			"count": {"gte": 3},
			"total_amount": {"gte": 1000}
		}
	}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Equal(t, contragentBase+
		" GROUP BY c.id"+
		" HAVING COUNT(ds.id) >= $2 AND SUM(ds.sum) >= $3"+
		" ORDER BY c.id", query)
	require.Equal(t, []any{int64(42), 3.0, 1000.0}, args)
}

func TestCompileContragentsPurchaseWindow(t *testing.T) {
	criteria := json.RawMessage(`{
		"purchases": {
			"date_range": {"gte": "2024-01-01"},
			"amount_per_check": {"gte": 500}
		}
	}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Equal(t, contragentBase+
		" AND ds.dated >= $2 AND ds.sum >= $3"+
		" GROUP BY c.id"+
		" ORDER BY c.id", query)
	require.Equal(t, []any{
		int64(42),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		500.0,
	}, args)
}

func TestCompileContragentsLastPurchase(t *testing.T) {
	criteria := json.RawMessage(`{"purchases": {"last_purchase_days_ago": {"gte": 30}}}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Contains(t, query, "HAVING MAX(ds.dated) <= $2")
	require.Equal(t, []any{int64(42), testNow.AddDate(0, 0, -30)}, args)
}

func TestCompileContragentsGoods(t *testing.T) {
	criteria := json.RawMessage(`{"purchases": {"categories": ["молочные", "бакалея"]}}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Contains(t, query,
		"EXISTS (SELECT 1 FROM docs_sales_goods dsg"+
			" JOIN nomenclature n ON n.id = dsg.nomenclature"+
			" LEFT JOIN categories cat ON cat.id = n.category"+
			" WHERE dsg.docs_sales_id = ds.id AND (cat.name ILIKE $2 OR cat.name ILIKE $3))")
	require.Equal(t, []any{int64(42), "%молочные%", "%бакалея%"}, args)
}

func TestCompileContragentsTagsRequireAll(t *testing.T) {
	criteria := json.RawMessage(`{"tags": ["vip", "wholesale"]}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Contains(t, query,
		"c.id IN (SELECT ct.contragent_id FROM contragents_tags ct"+
			" JOIN tags t ON t.id = ct.tag_id"+
			" WHERE t.name = ANY($2)"+
			" GROUP BY ct.contragent_id"+
			" HAVING COUNT(DISTINCT t.name) = $3)")
	require.Equal(t, []any{int64(42), []string{"vip", "wholesale"}, 2}, args)
}

func TestCompileContragentsLoyalty(t *testing.T) {
	criteria := json.RawMessage(`{"loyality": {"balance": {"gte": 100}, "expires_in_days": {"lte": 7}}}`)
	query, args, err := CompileContragents(42, criteria, testNow)
	require.NoError(t, err)
	require.Contains(t, query,
		"c.id IN (SELECT lc.contragent_id FROM loyality_cards lc"+
			" LEFT JOIN loyality_transactions lt ON lt.loyality_card_id = lc.id"+
			" WHERE lc.balance >= $2 AND"+
			" DATE_PART('day', lt.created_at + lc.lifetime * INTERVAL '1 second' - now()) <= $3)")
	require.Equal(t, []any{int64(42), 100.0, 7.0}, args)
}

func TestCompileContragentsBadDate(t *testing.T) {
	criteria := json.RawMessage(`{"purchases": {"date_range": {"gte": "01.06.2024"}}}`)
	_, _, err := CompileContragents(42, criteria, testNow)
	require.True(t, errors.Is(err, apperror.ErrDateFormat))
}

func TestCompileContragentsBadJSON(t *testing.T) {
	_, _, err := CompileContragents(42, json.RawMessage(`[1, 2]`), testNow)
	require.True(t, errors.Is(err, apperror.ErrCriteriaUnsupported))
}
