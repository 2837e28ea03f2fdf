// Package gemini implements the extraction.Extractor interface using
// Google's Gemini API. It handles prompt assembly, JSON response parsing,
// and retry with exponential backoff for transient API failures.
package gemini
