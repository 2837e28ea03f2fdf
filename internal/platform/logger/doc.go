// Package logger provides structured logging functionality for the application.
// It configures a slog JSON logger from server configuration and offers
// context helpers so request-scoped loggers can flow through call chains.
package logger
