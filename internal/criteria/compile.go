package criteria

import (
	"encoding/json"
	"fmt"
	"time"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

// Compile picks the compiler for the segment's selection domain.
func Compile(field model.SelectionField, cashboxID int64, criteria json.RawMessage, now time.Time) (string, []any, error) {
	switch field {
	case model.SelectionContragents:
		return CompileContragents(cashboxID, criteria, now)
	case model.SelectionDocsSales:
		return CompileDocsSales(cashboxID, criteria, now)
	default:
		return "", nil, fmt.Errorf("%w: %q", apperror.ErrCriteriaUnsupported, field)
	}
}
