package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyResponse indicates the provider answered with no usable text.
var ErrEmptyResponse = errors.New("ai returned empty response")
