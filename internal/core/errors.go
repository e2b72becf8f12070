package core

import (
	"errors"
)

var (
	// ErrPlatform marks a denied or rate-limited platform action
	ErrPlatform = errors.New("platform action failed")
	// ErrPersistenceUnavailable marks a storage failure
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrInvalidSetting marks a guild setting that could not be parsed
	ErrInvalidSetting = errors.New("invalid setting")
	// ErrNotFound is returned when a looked-up entity does not exist
	ErrNotFound = errors.New("not found")
)
