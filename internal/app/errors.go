package service

import "errors"

var (
	// ErrAlreadyExists is returned when adding a URL that is already active.
	ErrAlreadyExists = errors.New("listing already exists")
	// ErrWithdrawn is returned when reloading a withdrawn listing.
	ErrWithdrawn = errors.New("listing withdrawn")
	// ErrQueueFull is returned when a scrape job could not be enqueued.
	ErrQueueFull = errors.New("scrape queue full")
	// ErrUnknownBand is returned for band ids outside the configured grid.
	ErrUnknownBand = errors.New("unknown band")
)
