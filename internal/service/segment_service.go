package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tablecrm/internal/apperror"
	"tablecrm/internal/criteria"
	"tablecrm/internal/model"
	"tablecrm/internal/repository"
	"tablecrm/internal/ws"
)

// refreshCooldown is the minimum gap between manual refreshes of one
// segment.
const refreshCooldown = 5 * time.Minute

// ActionRunner executes the actions configured on a segment against one
// evaluation's change sets.
type ActionRunner interface {
	Run(ctx context.Context, seg *model.Segment, added, removed []int64)
}

// Notifier pushes an event to the account's realtime channel.
type Notifier interface {
	Notify(token, event string, segmentID int64) error
}

// Service owns the segment lifecycle and the evaluation pipeline:
// compile criteria, select, diff against the stored membership, persist a
// new version and fire the configured actions.
type Service struct {
	repo    repository.Repo
	actions ActionRunner
	notify  Notifier
	log     *slog.Logger
	now     func() time.Time
	base    context.Context
}

func NewService(repo repository.Repo, actions ActionRunner, notify Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		actions: actions,
		notify:  notify,
		log:     log,
		now:     time.Now,
	}
}

// BindLifecycle sets the context background evaluations derive from, so
// shutting the worker down also cancels evaluations kicked off by requests.
func (s *Service) BindLifecycle(ctx context.Context) {
	s.base = ctx
}

// ResolveToken maps an account token onto its cashbox.
func (s *Service) ResolveToken(ctx context.Context, token string) (int64, error) {
	return s.repo.CashboxByToken(ctx, token)
}

func (s *Service) CreateSegment(ctx context.Context, cashboxID int64, data *model.SegmentCreateDTO) (*model.SegmentDTO, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateSegment(ctx, cashboxID, data)
	if err != nil {
		return nil, err
	}
	seg, err := s.repo.GetSegment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.evaluateAsync(id)
	view := model.SegmentView(seg)
	return &view, nil
}

func (s *Service) GetSegment(ctx context.Context, cashboxID, id int64) (*model.SegmentDTO, error) {
	seg, err := s.repo.GetSegmentForCashbox(ctx, id, cashboxID)
	if err != nil {
		return nil, err
	}
	if seg.IsArchived {
		return nil, apperror.ErrSegmentArchived
	}
	view := model.SegmentView(seg)
	return &view, nil
}

func (s *Service) ListSegments(ctx context.Context, cashboxID int64) ([]model.SegmentDTO, error) {
	segments, err := s.repo.ListSegments(ctx, cashboxID)
	if err != nil {
		return nil, err
	}
	views := make([]model.SegmentDTO, 0, len(segments))
	for i := range segments {
		views = append(views, model.SegmentView(&segments[i]))
	}
	return views, nil
}

func (s *Service) ModifySegment(ctx context.Context, cashboxID, id int64, data *model.SegmentCreateDTO) (*model.SegmentDTO, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSegment(ctx, id, cashboxID, data); err != nil {
		return nil, err
	}
	seg, err := s.repo.GetSegment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !seg.IsArchived {
		s.evaluateAsync(id)
	}
	view := model.SegmentView(seg)
	return &view, nil
}

// evaluateAsync re-materializes the segment outside the request. The
// advisory lock makes overlapping kicks collapse into one evaluation.
func (s *Service) evaluateAsync(id int64) {
	ctx := s.base
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.UpdateSegment(ctx, id); err != nil {
			s.log.Error("segment evaluation failed", "segment_id", id, "error", err)
		}
	}()
}

// RefreshSegment starts an evaluation on demand. The evaluation itself runs
// in the background; the call only checks eligibility.
func (s *Service) RefreshSegment(ctx context.Context, cashboxID, id int64) error {
	seg, err := s.repo.GetSegmentForCashbox(ctx, id, cashboxID)
	if err != nil {
		return err
	}
	if seg.IsArchived {
		return apperror.ErrSegmentArchived
	}
	if seg.UpdatedAt != nil && s.now().Sub(*seg.UpdatedAt) < refreshCooldown {
		return apperror.ErrSegmentRecentlyUpdated
	}
	s.evaluateAsync(id)
	return nil
}

// UpdateSegment runs one evaluation of a segment. Concurrent evaluations
// of the same segment are excluded by a session advisory lock; losing the
// lock means another worker is already on it and the call is a no-op.
func (s *Service) UpdateSegment(ctx context.Context, id int64) error {
	seg, err := s.repo.GetSegment(ctx, id)
	if err != nil {
		return err
	}
	if seg.IsArchived {
		return apperror.ErrSegmentNotFound
	}

	lock, err := s.repo.TryLockSegment(ctx, id)
	if err != nil {
		return err
	}
	if lock == nil {
		s.log.Info("segment evaluation already in progress", "segment_id", id)
		return nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Error("failed to release segment lock", "segment_id", id, "error", err)
		}
	}()

	if err := s.repo.SetStatus(ctx, id, model.StatusRunning); err != nil {
		return err
	}

	added, removed, err := s.evaluate(ctx, seg)
	if err != nil {
		if statusErr := s.repo.SetStatus(ctx, id, model.StatusFailed); statusErr != nil {
			s.log.Error("failed to record segment failure", "segment_id", id, "error", statusErr)
		}
		return err
	}

	// Side effects after the membership commit. They must not undo it:
	// failures here are logged, not returned.
	s.actions.Run(ctx, seg, added, removed)
	if err := s.repo.MarkUpdated(ctx, id); err != nil {
		// One retry; a segment left in running with a stale updated_at
		// falls out of both the cron window and the refresh path.
		if err := s.repo.MarkUpdated(ctx, id); err != nil {
			s.log.Error("failed to stamp segment update", "segment_id", id, "error", err)
		}
	}
	s.notifyUpdated(ctx, id)
	return nil
}

func (s *Service) evaluate(ctx context.Context, seg *model.Segment) (added, removed []int64, err error) {
	query, args, err := criteria.Compile(seg.SelectionField, seg.CashboxID, seg.Criteria, s.now())
	if err != nil {
		return nil, nil, err
	}
	next, err := s.repo.SelectIDs(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	prev, err := s.repo.CurrentIDs(ctx, seg.ID)
	if err != nil {
		return nil, nil, err
	}
	added, removed = Diff(prev, next)

	_, err = s.repo.ApplyDiff(ctx, seg.ID, seg.SelectionField, seg.CurrentVersion, added, removed)
	if errors.Is(err, apperror.ErrConcurrentModification) {
		// Someone bumped the version under us. Re-read and retry once
		// against the fresh state.
		fresh, gerr := s.repo.GetSegment(ctx, seg.ID)
		if gerr != nil {
			return nil, nil, gerr
		}
		prev, gerr = s.repo.CurrentIDs(ctx, seg.ID)
		if gerr != nil {
			return nil, nil, gerr
		}
		added, removed = Diff(prev, next)
		_, err = s.repo.ApplyDiff(ctx, seg.ID, seg.SelectionField, fresh.CurrentVersion, added, removed)
	}
	if err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

// notifyUpdated pushes the realtime event to the segment owner's channel.
// One retry, then give up: missing the event only delays the UI until the
// next poll.
func (s *Service) notifyUpdated(ctx context.Context, id int64) {
	token, err := s.repo.TokenBySegment(ctx, id)
	if err != nil {
		s.log.Error("failed to resolve segment owner token", "segment_id", id, "error", err)
		return
	}
	if token == "" {
		return
	}
	if err := s.notify.Notify(token, ws.EventSegmentUpdated, id); err != nil {
		if err := s.notify.Notify(token, ws.EventSegmentUpdated, id); err != nil {
			s.log.Error("failed to push segment update event", "segment_id", id, "error", err)
		}
	}
}

// CollectData returns the current membership of a segment plus the change
// sets of its latest version, hydrated for display. Only contragent
// segments hydrate rows; docs-sales segments expose their results through
// tags and notifications.
func (s *Service) CollectData(ctx context.Context, cashboxID, id int64) (*model.SegmentDataDTO, error) {
	seg, err := s.repo.GetSegmentForCashbox(ctx, id, cashboxID)
	if err != nil {
		return nil, err
	}
	result := &model.SegmentDataDTO{
		ID:                 seg.ID,
		UpdatedAt:          seg.UpdatedAt,
		Contragents:        []model.ContragentDTO{},
		AddedContragents:   []model.ContragentDTO{},
		DeletedContragents: []model.ContragentDTO{},
	}
	if seg.SelectionField != model.SelectionContragents {
		return result, nil
	}

	current, err := s.repo.CurrentIDs(ctx, seg.ID)
	if err != nil {
		return nil, err
	}
	addedIDs, err := s.repo.VersionObjects(ctx, seg.ID, seg.CurrentVersion, model.ChangeAdded)
	if err != nil {
		return nil, err
	}
	removedIDs, err := s.repo.VersionObjects(ctx, seg.ID, seg.CurrentVersion, model.ChangeRemoved)
	if err != nil {
		return nil, err
	}

	if result.Contragents, err = s.hydrateContragents(ctx, current); err != nil {
		return nil, err
	}
	if result.AddedContragents, err = s.hydrateContragents(ctx, addedIDs); err != nil {
		return nil, err
	}
	if result.DeletedContragents, err = s.hydrateContragents(ctx, removedIDs); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) hydrateContragents(ctx context.Context, ids []int64) ([]model.ContragentDTO, error) {
	if len(ids) == 0 {
		return []model.ContragentDTO{}, nil
	}
	rows, err := s.repo.ContragentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Phone != nil {
			rows[i].Phone = model.NormalizePhone(*rows[i].Phone)
		}
	}
	return rows, nil
}
