package models

import "errors"

// ErrLessonNotFound is returned by lesson stores for unknown ids.
var ErrLessonNotFound = errors.New("lesson not found")
