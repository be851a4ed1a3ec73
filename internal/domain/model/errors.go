package model

import "errors"

// Sentinel kinds shared by stores and services.
var (
	ErrNotFound       = errors.New("listing not found")
	ErrInvalidPairKey = errors.New("invalid pair key")
	ErrInvalidURL     = errors.New("invalid listing url")
)
