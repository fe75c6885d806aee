package apperror

import "errors"

var (
	ErrSegmentNotFound        = errors.New("segment not found")
	ErrSegmentArchived        = errors.New("segment is archived")
	ErrSegmentRecentlyUpdated = errors.New("segment was updated less than 5 minutes ago")
	ErrTokenNotFound          = errors.New("token not found")

	ErrConcurrentModification = errors.New("segment version changed by a concurrent writer")
	ErrCriteriaUnsupported    = errors.New("criteria references an unsupported selection field")

	ErrUpdateSettingsRequired = errors.New("update_settings is required when type_of_update is 'cron'")
	ErrIntervalTooSmall       = errors.New("interval_minutes must be at least 5")
	ErrDateFormat             = errors.New("date must be in YYYY-MM-DD format")
	ErrHexColor               = errors.New("color must be a hex value like #AABBCC")

	ErrTagName      = errors.New("tag name must be 2-20 characters of letters, digits, '_' or '-'")
	ErrDuplicateTag = errors.New("duplicate tag name in request")
	ErrTooManyTags  = errors.New("cannot attach more than 10 tags per entity")
	ErrListItemLen  = errors.New("list item must be at least 3 characters")

	ErrCannotInsertT  = errors.New("cannot insert into table")
	ErrCannotDeleteFT = errors.New("failed to remove from table")

	ErrDuringRowsIteration = errors.New("error during rows iteration")

	ErrFailedBTransaction = errors.New("failed to begin transaction")
	ErrFailedCTransaction = errors.New("failed to commit transaction")
)
