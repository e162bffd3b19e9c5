package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrProviderFailure     = errors.New("provider failure")
	ErrResultMissing       = errors.New("completed without artifact")
	ErrUnsupportedJobType  = errors.New("unsupported job type")
)
