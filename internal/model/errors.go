package model

import "errors"

// Failure taxonomy. Everything but ErrCompletionFailure is recovered inside
// the compose pipeline and surfaces only as a degradation reason.
var (
	ErrRouterFailure         = errors.New("router failure")
	ErrPlannerFormula        = errors.New("planner formula failure")
	ErrRetrievalUnavailable  = errors.New("retrieval unavailable")
	ErrCompressionOverflow   = errors.New("compression overflow")
	ErrRepositoryUnavailable = errors.New("component repository unavailable")
	ErrCompletionFailure     = errors.New("completion service failure")
	ErrNotFound              = errors.New("not found")
)
