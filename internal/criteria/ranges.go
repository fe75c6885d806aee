package criteria

import (
	"fmt"
	"time"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

// Builder numbers positional arguments while predicates are assembled.
// Every produced predicate is meant to be conjoined by the caller.
type Builder struct {
	args []any
}

func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *Builder) Args() []any {
	return b.args
}

// ApplyRange appends the predicates a {gte, lte, eq, is_none} object
// describes for column expression col. is_none supersedes the other keys.
// A range with nothing set contributes no predicate.
func (b *Builder) ApplyRange(col string, r *model.Range, clauses *[]string) {
	if r == nil {
		return
	}
	if r.IsNone != nil {
		if *r.IsNone {
			*clauses = append(*clauses, col+" IS NULL")
		} else {
			*clauses = append(*clauses, col+" IS NOT NULL")
		}
		return
	}
	if r.Gte != nil {
		*clauses = append(*clauses, fmt.Sprintf("%s >= %s", col, b.Bind(*r.Gte)))
	}
	if r.Lte != nil {
		*clauses = append(*clauses, fmt.Sprintf("%s <= %s", col, b.Bind(*r.Lte)))
	}
	if r.Eq != nil {
		*clauses = append(*clauses, fmt.Sprintf("%s = %s", col, b.Bind(*r.Eq)))
	}
}

// ApplyDateRange is the date counterpart. Bounds parse as YYYY-MM-DD;
// the *_seconds_ago keys are offsets back from now, the evaluation-start
// timestamp.
func (b *Builder) ApplyDateRange(col string, r *model.DateRange, now time.Time, clauses *[]string) error {
	if r == nil {
		return nil
	}
	if r.IsNone != nil {
		if *r.IsNone {
			*clauses = append(*clauses, col+" IS NULL")
		} else {
			*clauses = append(*clauses, col+" IS NOT NULL")
		}
		return nil
	}
	if r.Gte != nil {
		d, err := time.Parse("2006-01-02", *r.Gte)
		if err != nil {
			return fmt.Errorf("%w: %q", apperror.ErrDateFormat, *r.Gte)
		}
		*clauses = append(*clauses, fmt.Sprintf("%s >= %s", col, b.Bind(d)))
	}
	if r.Lte != nil {
		d, err := time.Parse("2006-01-02", *r.Lte)
		if err != nil {
			return fmt.Errorf("%w: %q", apperror.ErrDateFormat, *r.Lte)
		}
		*clauses = append(*clauses, fmt.Sprintf("%s <= %s", col, b.Bind(d)))
	}
	if r.GteSecondsAgo != nil {
		*clauses = append(*clauses, fmt.Sprintf("%s >= %s", col,
			b.Bind(now.Add(-time.Duration(*r.GteSecondsAgo)*time.Second))))
	}
	if r.LteSecondsAgo != nil {
		*clauses = append(*clauses, fmt.Sprintf("%s <= %s", col,
			b.Bind(now.Add(-time.Duration(*r.LteSecondsAgo)*time.Second))))
	}
	return nil
}
