package rules

import "errors"

var (
	ErrUnsupportedExpectation = errors.New("unsupported expectation type")
	ErrUnsupportedCheck       = errors.New("unsupported check type")
	ErrSandboxViolation       = errors.New("sandbox violation")
	ErrGroupNotFound          = errors.New("rule group not found")
)
