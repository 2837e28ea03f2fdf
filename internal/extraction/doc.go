// Package extraction provides interfaces and types for turning raw email
// messages into structured invoice records via an external AI service. It
// abstracts the details of the LLM API integration (Gemini), allowing the
// scan pipeline to extract invoices without coupling to a specific vendor.
package extraction
