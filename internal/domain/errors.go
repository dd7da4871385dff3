/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package domain

import "errors"

// Structural precondition failures are reported synchronously to callers.
// Generation and persistence failures never surface as errors from the
// editing core; they become slide flags or log records.
var (
	ErrLastSlide        = errors.New("a deck must keep at least one slide")
	ErrIndexOutOfRange  = errors.New("slide index out of range")
	ErrUnknownTheme     = errors.New("unknown theme")
	ErrDeckNotFound     = errors.New("deck not found")
	ErrSlideNotFound    = errors.New("slide not found")
	ErrEmptyImage       = errors.New("generation returned no image")
	ErrThemeInProgress  = errors.New("a theme is already being applied")
	ErrInvalidObjectSet = errors.New("invalid canvas object set")
	ErrObjectNotFound   = errors.New("canvas object not found")
)
