package scheduler

import "errors"

var (
	// ErrInitialization fails queued tasks once every worker failed to load its engine.
	ErrInitialization = errors.New("no worker could be initialized")
	ErrClosed         = errors.New("scheduler is closed")
)
