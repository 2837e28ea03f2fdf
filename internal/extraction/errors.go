package extraction

import "errors"

// Common errors returned by the extraction package
var (
	// ErrExtractionFailed is returned when invoice extraction fails for any general reason
	ErrExtractionFailed = errors.New("failed to extract invoice from message")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during invoice extraction")

	// ErrInvalidConfig is returned when the extractor configuration is invalid
	ErrInvalidConfig = errors.New("invalid extractor configuration")
)
