package criteria

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

const docsSalesBase = "SELECT DISTINCT ds.id FROM docs_sales ds" +
	" WHERE ds.cashbox = $1 AND ds.is_deleted IS NOT TRUE"

func TestCompileDocsSalesEmptyCriteria(t *testing.T) {
	query, args, err := CompileDocsSales(7, nil, testNow)
	require.NoError(t, err)
	require.Equal(t, docsSalesBase+" ORDER BY ds.id", query)
	require.Equal(t, []any{int64(7)}, args)
}

func TestCompileDocsSalesTag(t *testing.T) {
	query, args, err := CompileDocsSales(7, json.RawMessage(`{"tag": "express"}`), testNow)
	require.NoError(t, err)
	require.Equal(t, docsSalesBase+
		" AND EXISTS (SELECT 1 FROM docs_sales_tags dst"+
		" WHERE dst.docs_sales_id = ds.id AND dst.name = $2)"+
		" ORDER BY ds.id", query)
	require.Equal(t, []any{int64(7), "express"}, args)
}

func TestCompileDocsSalesDeliveryRequired(t *testing.T) {
	t.Run("Required", func(t *testing.T) {
		query, _, err := CompileDocsSales(7, json.RawMessage(`{"delivery_required": true}`), testNow)
		require.NoError(t, err)
		require.Contains(t, query,
			"EXISTS (SELECT 1 FROM docs_sales_delivery_info di WHERE di.docs_sales_id = ds.id)")
		require.NotContains(t, query, "NOT EXISTS")
	})
	t.Run("NotRequired", func(t *testing.T) {
		query, _, err := CompileDocsSales(7, json.RawMessage(`{"delivery_required": false}`), testNow)
		require.NoError(t, err)
		require.Contains(t, query,
			"NOT EXISTS (SELECT 1 FROM docs_sales_delivery_info di WHERE di.docs_sales_id = ds.id)")
	})
}

func TestCompileDocsSalesCreatedAt(t *testing.T) {
	query, args, err := CompileDocsSales(7, json.RawMessage(`{"created_at": {"gte_seconds_ago": 900}}`), testNow)
	require.NoError(t, err)
	require.Equal(t, docsSalesBase+" AND ds.created_at >= $2 ORDER BY ds.id", query)
	require.Equal(t, []any{int64(7), testNow.Add(-900 * time.Second)}, args)
}

func TestCompileDocsSalesPicker(t *testing.T) {
	criteria := json.RawMessage(`{"picker": {"assigned": true, "start": {"gte": "2024-06-01"}}}`)
	query, args, err := CompileDocsSales(7, criteria, testNow)
	require.NoError(t, err)
	require.Equal(t, docsSalesBase+
		" AND ds.assigned_picker IS NOT NULL"+
		" AND ds.picker_started_at >= $2"+
		" ORDER BY ds.id", query)
	require.Equal(t, []any{int64(7), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, args)
}

func TestCompileDocsSalesUnassignedCourier(t *testing.T) {
	criteria := json.RawMessage(`{"courier": {"assigned": false}}`)
	query, args, err := CompileDocsSales(7, criteria, testNow)
	require.NoError(t, err)
	require.Equal(t, docsSalesBase+
		" AND ds.assigned_courier IS NULL"+
		" AND ds.order_status = $2"+
		" ORDER BY ds.id", query)
	require.Equal(t, []any{int64(7), "collected"}, args)
}

func TestCompileDispatch(t *testing.T) {
	query, _, err := Compile(model.SelectionDocsSales, 7, nil, testNow)
	require.NoError(t, err)
	require.Contains(t, query, "FROM docs_sales ds")

	query, _, err = Compile(model.SelectionContragents, 7, nil, testNow)
	require.NoError(t, err)
	require.Contains(t, query, "FROM contragents c")

	_, _, err = Compile("warehouses", 7, nil, testNow)
	require.True(t, errors.Is(err, apperror.ErrCriteriaUnsupported))
}
