package domain

import "errors"

var (
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrAlreadyInFlight  = errors.New("generation already in flight")
	ErrNoActiveJob      = errors.New("no active generation")
	ErrJobNotFound      = errors.New("job not found")
	ErrNoJobAvailable   = errors.New("no job available")
	ErrResultMissing    = errors.New("result missing")
	ErrGenerationFailed = errors.New("generation failed")
	ErrJobCancelled     = errors.New("job cancelled")
	ErrAwaitTimeout     = errors.New("timed out waiting for result")
)
