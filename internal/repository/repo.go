package repository

import (
	"context"
	"database/sql"

	"tablecrm/internal/model"
)

// SegmentLock is a held per-segment advisory lock. Release must run on
// every exit path; it also returns the pinned session to the pool.
type SegmentLock interface {
	Release(ctx context.Context) error
}

// SegmentRepo covers the segments table itself: lifecycle, scheduler
// eligibility and the per-segment advisory lock.
type SegmentRepo interface {
	GetSegment(ctx context.Context, id int64) (*model.Segment, error)
	GetSegmentForCashbox(ctx context.Context, id, cashboxID int64) (*model.Segment, error)
	ListSegments(ctx context.Context, cashboxID int64) ([]model.Segment, error)
	CreateSegment(ctx context.Context, cashboxID int64, data *model.SegmentCreateDTO) (int64, error)
	UpdateSegment(ctx context.Context, id, cashboxID int64, data *model.SegmentCreateDTO) error
	ListDueSegments(ctx context.Context) ([]int64, error)
	SetStatus(ctx context.Context, id int64, status model.SegmentStatus) error
	MarkUpdated(ctx context.Context, id int64) error
	// TryLockSegment returns a nil lock when another evaluation holds it.
	TryLockSegment(ctx context.Context, id int64) (SegmentLock, error)
	CashboxByToken(ctx context.Context, token string) (int64, error)
	TokenBySegment(ctx context.Context, segmentID int64) (string, error)
}

// MembershipRepo is the membership store of a segment: the current set plus
// versioned added/removed records.
type MembershipRepo interface {
	CurrentIDs(ctx context.Context, segmentID int64) ([]int64, error)
	// ApplyDiff advances the version and persists one evaluation's change in
	// a single transaction. With an empty diff it writes nothing and returns
	// the current version unchanged.
	ApplyDiff(ctx context.Context, segmentID int64, objType model.SelectionField, expectedVersion int64, added, removed []int64) (int64, error)
	VersionObjects(ctx context.Context, segmentID, version int64, change model.ChangeType) ([]int64, error)
}

// CollectorRepo executes compiled criteria selects and hydrates ids into
// display rows and notification context.
type CollectorRepo interface {
	SelectIDs(ctx context.Context, query string, args ...any) ([]int64, error)
	ContragentsByIDs(ctx context.Context, ids []int64) ([]model.ContragentDTO, error)
	UserChatIDsByTag(ctx context.Context, cashboxID int64, userTag string) ([]int64, error)
	PickerChatIDs(ctx context.Context, cashboxID, orderID int64) ([]int64, error)
	CourierChatIDs(ctx context.Context, cashboxID, orderID int64) ([]int64, error)
	DeliveryInfo(ctx context.Context, orderID int64) (*model.DeliveryInfo, error)
	OrderLinks(ctx context.Context, orderID int64) (map[string]string, error)
}

// ActionRepo carries the tag mutations of the action runtime. All of them
// assert state rather than apply operations, so re-delivery is harmless.
type ActionRepo interface {
	AttachContragentTags(ctx context.Context, cashboxID int64, contragentIDs []int64, names []string) error
	DetachContragentTags(ctx context.Context, cashboxID int64, contragentIDs []int64, names []string) error
	AttachDocsSalesTags(ctx context.Context, docIDs []int64, names []string) error
	DetachDocsSalesTags(ctx context.Context, docIDs []int64, names []string) error
}

type Repo interface {
	SegmentRepo
	MembershipRepo
	CollectorRepo
	ActionRepo
}

type pgxRepo struct {
	db *sql.DB
}

func NewPgxRepo(db *sql.DB) Repo {
	return &pgxRepo{db: db}
}
