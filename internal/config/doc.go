// Package config defines the application's configuration structures and
// loading logic. Configuration is sourced from defaults, an optional YAML
// file, and environment variables (prefix INVOICE_), and validated before
// the application starts.
package config
