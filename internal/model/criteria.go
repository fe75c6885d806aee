package model

// Range carries the {gte, lte, eq, is_none} filter object of numeric
// criteria. is_none=true supersedes the other keys.
type Range struct {
	Gte    *float64 `json:"gte,omitempty"`
	Lte    *float64 `json:"lte,omitempty"`
	Eq     *float64 `json:"eq,omitempty"`
	IsNone *bool    `json:"is_none,omitempty"`
}

// DateRange is the date counterpart. Gte/Lte hold YYYY-MM-DD strings,
// the *_seconds_ago keys are offsets back from the evaluation start.
type DateRange struct {
	Gte           *string `json:"gte,omitempty"`
	Lte           *string `json:"lte,omitempty"`
	GteSecondsAgo *int64  `json:"gte_seconds_ago,omitempty"`
	LteSecondsAgo *int64  `json:"lte_seconds_ago,omitempty"`
	IsNone        *bool   `json:"is_none,omitempty"`
}

type PurchaseCriteria struct {
	TotalAmount         *Range     `json:"total_amount,omitempty"`
	Count               *Range     `json:"count,omitempty"`
	LastPurchaseDaysAgo *Range     `json:"last_purchase_days_ago,omitempty"`
	AmountPerCheck      *Range     `json:"amount_per_check,omitempty"`
	DateRange           *DateRange `json:"date_range,omitempty"`
	Categories          []string   `json:"categories,omitempty"`
	Nomenclatures       []string   `json:"nomenclatures,omitempty"`
}

type LoyaltyCriteria struct {
	Balance       *Range `json:"balance,omitempty"`
	ExpiresInDays *Range `json:"expires_in_days,omitempty"`
}

type PickerCourierCriteria struct {
	Assigned *bool      `json:"assigned,omitempty"`
	Start    *DateRange `json:"start,omitempty"`
	Finish   *DateRange `json:"finish,omitempty"`
}

type AddRemoveTags struct {
	Name []string `json:"name"`
}

type DocsSalesTags struct {
	Tags []string `json:"tags"`
}

type TgNotificationAction struct {
	TriggerOnNew bool   `json:"trigger_on_new"`
	Message      string `json:"message"`
	UserTag      string `json:"user_tag,omitempty"`
	SendTo       string `json:"send_to,omitempty"`
}
