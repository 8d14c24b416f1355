package util

import "errors"

// Hard-error taxonomy. Moderation/safety/parse-repair outcomes are not
// errors; they come back as tagged results on the normal path.
var (
	ErrValidation          = errors.New("missing or invalid input")
	ErrSessionNotFound     = errors.New("session not found")
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrCourseNotFound      = errors.New("course not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrModelUnavailable    = errors.New("model service unavailable")
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
	ErrSessionArchived     = errors.New("session is archived")
	ErrSessionBusy         = errors.New("another turn for this session is still in progress")
	ErrDuplicateCourse     = errors.New("a course with a very similar title already exists")
	ErrDuplicateTopic      = errors.New("a very similar topic already exists in this course")
)
