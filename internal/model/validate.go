package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"tablecrm/internal/apperror"
)

const maxTagsPerEntity = 10

var (
	tagNameRegex  = regexp.MustCompile(`^[A-Za-zА-Яа-я0-9_-]{2,20}$`)
	hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func ValidateTagName(name string) error {
	if !tagNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", apperror.ErrTagName, name)
	}
	return nil
}

func ValidateTagNames(names []string) error {
	if len(names) > maxTagsPerEntity {
		return apperror.ErrTooManyTags
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := ValidateTagName(name); err != nil {
			return err
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q", apperror.ErrDuplicateTag, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func ValidateHexColor(color string) error {
	if !hexColorRegex.MatchString(color) {
		return fmt.Errorf("%w: %q", apperror.ErrHexColor, color)
	}
	return nil
}

func ValidateDate(value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("%w: %q", apperror.ErrDateFormat, value)
	}
	return nil
}

func validateDateRange(r *DateRange) error {
	if r == nil {
		return nil
	}
	if r.Gte != nil {
		if err := ValidateDate(*r.Gte); err != nil {
			return err
		}
	}
	if r.Lte != nil {
		if err := ValidateDate(*r.Lte); err != nil {
			return err
		}
	}
	return nil
}

// validateListItems guards the substring criteria: each item must be at
// least 3 characters so an ILIKE match cannot degenerate into everything.
func validateListItems(items []string) error {
	for _, item := range items {
		if len([]rune(item)) < 3 {
			return fmt.Errorf("%w: %q", apperror.ErrListItemLen, item)
		}
	}
	return nil
}

// Validate checks a segment create/update payload the way the API surfaces
// validation errors: the first broken rule aborts.
func (d *SegmentCreateDTO) Validate() error {
	switch d.SelectionField {
	case SelectionContragents, SelectionDocsSales:
	default:
		return fmt.Errorf("%w: %q", apperror.ErrCriteriaUnsupported, d.SelectionField)
	}
	if d.TypeOfUpdate == UpdateCron {
		if d.UpdateSettings == nil {
			return apperror.ErrUpdateSettingsRequired
		}
		if d.UpdateSettings.IntervalMinutes < 5 {
			return apperror.ErrIntervalTooSmall
		}
	}
	if err := d.validateCriteria(); err != nil {
		return err
	}
	return d.validateActions()
}

func (d *SegmentCreateDTO) validateCriteria() error {
	if len(d.Criteria) == 0 {
		return nil
	}
	if d.SelectionField == SelectionContragents {
		var c struct {
			Purchases *PurchaseCriteria `json:"purchases"`
			Loyality  *LoyaltyCriteria  `json:"loyality"`
			Tags      []string          `json:"tags"`
		}
		if err := json.Unmarshal(d.Criteria, &c); err != nil {
			return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
		}
		if p := c.Purchases; p != nil {
			if err := validateDateRange(p.DateRange); err != nil {
				return err
			}
			if err := validateListItems(p.Categories); err != nil {
				return err
			}
			if err := validateListItems(p.Nomenclatures); err != nil {
				return err
			}
		}
		return nil
	}
	var c struct {
		CreatedAt *DateRange             `json:"created_at"`
		Picker    *PickerCourierCriteria `json:"picker"`
		Courier   *PickerCourierCriteria `json:"courier"`
	}
	if err := json.Unmarshal(d.Criteria, &c); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
	}
	if err := validateDateRange(c.CreatedAt); err != nil {
		return err
	}
	for _, pc := range []*PickerCourierCriteria{c.Picker, c.Courier} {
		if pc == nil {
			continue
		}
		if err := validateDateRange(pc.Start); err != nil {
			return err
		}
		if err := validateDateRange(pc.Finish); err != nil {
			return err
		}
	}
	return nil
}

func (d *SegmentCreateDTO) validateActions() error {
	if len(d.Actions) == 0 {
		return nil
	}
	var actions map[string]json.RawMessage
	if err := json.Unmarshal(d.Actions, &actions); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
	}
	for key, raw := range actions {
		switch key {
		case "add_tags", "remove_tags":
			var payload AddRemoveTags
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
			}
			if err := ValidateTagNames(payload.Name); err != nil {
				return err
			}
		case "add_docs_sales_tags", "remove_docs_sales_tags":
			var payload DocsSalesTags
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
			}
			if err := ValidateTagNames(payload.Tags); err != nil {
				return err
			}
		case "send_tg_notification":
			var payload TgNotificationAction
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %v", apperror.ErrCriteriaUnsupported, err)
			}
		}
	}
	return nil
}
