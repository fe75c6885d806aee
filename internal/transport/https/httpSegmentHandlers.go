package https

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tablecrm/internal/apperror"
	"tablecrm/internal/model"
)

// SegmentService is the slice of the service layer the HTTP surface needs.
type SegmentService interface {
	ResolveToken(ctx context.Context, token string) (int64, error)
	CreateSegment(ctx context.Context, cashboxID int64, data *model.SegmentCreateDTO) (*model.SegmentDTO, error)
	GetSegment(ctx context.Context, cashboxID, id int64) (*model.SegmentDTO, error)
	ListSegments(ctx context.Context, cashboxID int64) ([]model.SegmentDTO, error)
	ModifySegment(ctx context.Context, cashboxID, id int64, data *model.SegmentCreateDTO) (*model.SegmentDTO, error)
	RefreshSegment(ctx context.Context, cashboxID, id int64) error
	CollectData(ctx context.Context, cashboxID, id int64) (*model.SegmentDataDTO, error)
}

type HTTPHandlers struct {
	Segments SegmentService
}

func NewHTTPHandlers(segments SegmentService) *HTTPHandlers {
	return &HTTPHandlers{
		Segments: segments,
	}
}

type ctxKey int

const cashboxKey ctxKey = iota

// withCashbox resolves the token query parameter onto the caller's cashbox.
// Every /segments route is tenant scoped through it.
func (h *HTTPHandlers) withCashbox(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeJSONError(w, r, http.StatusUnauthorized, "token is required")
			return
		}
		cashboxID, err := h.Segments.ResolveToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, apperror.ErrTokenNotFound) {
				writeJSONError(w, r, http.StatusUnauthorized, err.Error())
				return
			}
			writeJSONError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), cashboxKey, cashboxID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cashboxFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(cashboxKey).(int64)
	return id
}

func segmentIDFrom(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
}

func (h *HTTPHandlers) HandleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var dto model.SegmentCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	created, err := h.Segments.CreateSegment(r.Context(), cashboxFrom(r), &dto)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (h *HTTPHandlers) HandleListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.Segments.ListSegments(r.Context(), cashboxFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, segments)
}

func (h *HTTPHandlers) HandleGetSegment(w http.ResponseWriter, r *http.Request) {
	id, err := segmentIDFrom(r)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid segment id")
		return
	}
	segment, err := h.Segments.GetSegment(r.Context(), cashboxFrom(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, segment)
}

func (h *HTTPHandlers) HandleModifySegment(w http.ResponseWriter, r *http.Request) {
	id, err := segmentIDFrom(r)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid segment id")
		return
	}
	var dto model.SegmentCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	updated, err := h.Segments.ModifySegment(r.Context(), cashboxFrom(r), id, &dto)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, updated)
}

// HandleRefreshSegment triggers an evaluation on demand. The work itself
// happens in the background, so a success only means it was accepted.
func (h *HTTPHandlers) HandleRefreshSegment(w http.ResponseWriter, r *http.Request) {
	id, err := segmentIDFrom(r)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid segment id")
		return
	}
	if err := h.Segments.RefreshSegment(r.Context(), cashboxFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "accepted"})
}

func (h *HTTPHandlers) HandleSegmentResult(w http.ResponseWriter, r *http.Request) {
	id, err := segmentIDFrom(r)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid segment id")
		return
	}
	data, err := h.Segments.CollectData(r.Context(), cashboxFrom(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

var badRequestErrors = []error{
	apperror.ErrCriteriaUnsupported,
	apperror.ErrUpdateSettingsRequired,
	apperror.ErrIntervalTooSmall,
	apperror.ErrDateFormat,
	apperror.ErrHexColor,
	apperror.ErrTagName,
	apperror.ErrDuplicateTag,
	apperror.ErrTooManyTags,
	apperror.ErrListItemLen,
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperror.ErrSegmentNotFound):
		writeJSONError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, apperror.ErrSegmentArchived):
		writeJSONError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, apperror.ErrSegmentRecentlyUpdated):
		writeJSONError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, apperror.ErrTokenNotFound):
		writeJSONError(w, r, http.StatusUnauthorized, err.Error())
	default:
		for _, target := range badRequestErrors {
			if errors.Is(err, target) {
				writeJSONError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		}
		writeJSONError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, model.ErrorDTO{Error: message})
}
