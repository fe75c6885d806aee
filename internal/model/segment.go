package model

import (
	"encoding/json"
	"time"
)

type SelectionField string

const (
	SelectionContragents SelectionField = "contragents"
	SelectionDocsSales   SelectionField = "docs_sales"
)

type TypeOfUpdate string

const (
	UpdateCron    TypeOfUpdate = "cron"
	UpdateRequest TypeOfUpdate = "request"
)

type SegmentStatus string

const (
	StatusIdle    SegmentStatus = "idle"
	StatusRunning SegmentStatus = "running"
	StatusFailed  SegmentStatus = "failed"
)

type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
)

// Segment is one row of the segments table. Criteria and Actions stay raw:
// the compiler and the action runtime unmarshal the parts they recognize.
type Segment struct {
	ID               int64
	CashboxID        int64
	Name             string
	SelectionField   SelectionField
	Criteria         json.RawMessage
	Actions          json.RawMessage
	TypeOfUpdate     TypeOfUpdate
	UpdateSettings   *UpdateSettings
	IsArchived       bool
	Status           SegmentStatus
	UpdatedAt        *time.Time
	PreviousUpdateAt *time.Time
	CurrentVersion   int64
}

type UpdateSettings struct {
	IntervalMinutes int `json:"interval_minutes"`
}

type SegmentCreateDTO struct {
	Name           string          `json:"name"`
	SelectionField SelectionField  `json:"selection_field"`
	Criteria       json.RawMessage `json:"criteria"`
	Actions        json.RawMessage `json:"actions,omitempty"`
	TypeOfUpdate   TypeOfUpdate    `json:"type_of_update"`
	UpdateSettings *UpdateSettings `json:"update_settings,omitempty"`
	IsArchived     bool            `json:"is_archived"`
}

type SegmentDTO struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	SelectionField SelectionField  `json:"selection_field"`
	Criteria       json.RawMessage `json:"criteria"`
	Actions        json.RawMessage `json:"actions,omitempty"`
	TypeOfUpdate   TypeOfUpdate    `json:"type_of_update"`
	UpdateSettings *UpdateSettings `json:"update_settings,omitempty"`
	Status         SegmentStatus   `json:"status"`
	IsArchived     bool            `json:"is_archived"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

type ContragentDTO struct {
	ID    int64   `json:"id"`
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type SegmentDataDTO struct {
	ID                 int64           `json:"id"`
	UpdatedAt          *time.Time      `json:"updated_at,omitempty"`
	Contragents        []ContragentDTO `json:"contragents"`
	AddedContragents   []ContragentDTO `json:"added_contragents"`
	DeletedContragents []ContragentDTO `json:"deleted_contragents"`
}

type ErrorDTO struct {
	Error string `json:"error"`
}

// DeliveryInfo hydrates the mask context of docs-sales notifications.
// Absent fields substitute as empty strings.
type DeliveryInfo struct {
	Address   string
	Note      string
	Date      *time.Time
	Recipient string
}

func SegmentView(s *Segment) SegmentDTO {
	return SegmentDTO{
		ID:             s.ID,
		Name:           s.Name,
		SelectionField: s.SelectionField,
		Criteria:       s.Criteria,
		Actions:        s.Actions,
		TypeOfUpdate:   s.TypeOfUpdate,
		UpdateSettings: s.UpdateSettings,
		Status:         s.Status,
		IsArchived:     s.IsArchived,
		UpdatedAt:      s.UpdatedAt,
	}
}
