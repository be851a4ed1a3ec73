package repository

import (
	"errors"

	"github.com/okian/flatrank/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound  = model.ErrNotFound
	ErrDuplicate = errors.New("listing already exists")
	ErrClosed    = errors.New("store closed")
)
